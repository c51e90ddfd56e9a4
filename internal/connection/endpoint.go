package connection

import (
	"fmt"
	"net/url"
	"strings"

	"notifier/internal/config"
)

// Resolver derives the hub endpoint for each connect attempt
// FUNCTIONAL DISCOVERY: Precedence is configured base URL, then the local development
// origin, then the fallback origin. BaseURL is a function so environment changes are
// picked up by the next attempt without a restart
type Resolver struct {
	BaseURL  func() string
	Suffix   string
	Origin   string
	DevHosts []string
	Fallback string
}

// NewResolver builds a resolver from client configuration
func NewResolver(cfg config.ClientConfig) *Resolver {
	return &Resolver{
		BaseURL:  cfg.LiveBaseURL(),
		Suffix:   cfg.PathSuffix,
		Origin:   cfg.Origin,
		DevHosts: cfg.DevHosts,
		Fallback: cfg.FallbackOrigin,
	}
}

// Resolve returns the websocket URL of the hub
func (r *Resolver) Resolve() (string, error) {
	if r.BaseURL != nil {
		if base := strings.TrimSpace(r.BaseURL()); base != "" {
			return r.join(base)
		}
	}
	if r.isDevOrigin() {
		return r.join(r.Origin)
	}
	if r.Fallback == "" {
		return "", fmt.Errorf("%w: no base URL, development origin or fallback", ErrInvalidEndpoint)
	}
	return r.join(r.Fallback)
}

func (r *Resolver) isDevOrigin() bool {
	if r.Origin == "" {
		return false
	}
	u, err := url.Parse(r.Origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, dev := range r.DevHosts {
		if strings.EqualFold(host, dev) {
			return true
		}
	}
	return false
}

func (r *Resolver) join(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, base)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if r.Suffix != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(r.Suffix, "/")
	}
	return u.String(), nil
}
