// Package auth issues and reads the JWT access tokens shared with the school backend.
//
// The server verifies tokens presented at the hub handshake; the client only decodes
// them (without verification) to learn which groups the session should join.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"notifier/pkg/interfaces"
	"notifier/pkg/types"
)

var (
	ErrMissingToken  = errors.New("missing access token")
	ErrInvalidToken  = errors.New("invalid access token")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

// Claims represents the authorization claims transmitted via a JWT
type Claims struct {
	jwt.StandardClaims
	Username  string   `json:"username,omitempty"`
	IsStudent bool     `json:"is_student,omitempty"`
	IsTeacher bool     `json:"is_teacher,omitempty"`
	IsAdmin   bool     `json:"is_admin,omitempty"`
	StudentID int64    `json:"student_id,omitempty"`
	TeacherID int64    `json:"teacher_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// Identity converts the claims into the session identity used for group decisions
func (c *Claims) Identity() types.Identity {
	identity := types.Identity{
		Authenticated: true,
		Username:      c.Username,
		IsAdmin:       c.IsAdmin,
		Roles:         c.Roles,
	}
	if c.IsStudent || c.StudentID > 0 {
		identity.StudentID = c.StudentID
	}
	if c.IsTeacher || c.TeacherID > 0 {
		identity.TeacherID = c.TeacherID
	}
	return identity
}

// Issuer signs claims with an HMAC secret
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer; ttl <= 0 produces tokens without expiry
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue fills the registered claims and returns the signed token
func (i *Issuer) Issue(claims *Claims) (string, error) {
	now := i.now()
	claims.Issuer = i.issuer
	claims.IssuedAt = now.Unix()
	if i.ttl > 0 {
		claims.ExpiresAt = now.Add(i.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks signature and expiry of presented tokens
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for HMAC signed tokens
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates a token
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Decode reads the claims of a token without checking its signature
// TECHNICAL DISCOVERY: The client trusts its own stored token for group selection; the
// server re-verifies every join, so an unverified decode cannot widen access
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// TokenIdentity derives the session identity from the current credential on every call
type TokenIdentity struct {
	credentials interfaces.CredentialSource
	now         func() time.Time
}

// NewTokenIdentity creates an IdentitySource backed by a credential source
func NewTokenIdentity(credentials interfaces.CredentialSource) *TokenIdentity {
	return &TokenIdentity{credentials: credentials, now: time.Now}
}

// Identity returns an unauthenticated identity when the token is absent, malformed or expired
func (t *TokenIdentity) Identity() types.Identity {
	claims, err := Decode(t.credentials.Token())
	if err != nil {
		return types.Identity{}
	}
	if claims.ExpiresAt != 0 && t.now().Unix() > claims.ExpiresAt {
		return types.Identity{}
	}
	return claims.Identity()
}
