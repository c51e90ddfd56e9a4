package interfaces

import "notifier/pkg/types"

// CredentialSource yields the access token to present at connect time
// An empty string means the session is not logged in
type CredentialSource interface {
	Token() string
}

// CredentialFunc adapts a plain function to CredentialSource
type CredentialFunc func() string

func (f CredentialFunc) Token() string { return f() }

// IdentitySource tells the core who is logged in so it can decide which groups to join
type IdentitySource interface {
	Identity() types.Identity
}

// IdentityFunc adapts a plain function to IdentitySource
type IdentityFunc func() types.Identity

func (f IdentityFunc) Identity() types.Identity { return f() }
