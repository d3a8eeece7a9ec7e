package client

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"slices"

	"github.com/smallbiznis/hyperion/internal/auth/scope"
)

var ErrMismatchingRedirectURI = errors.New("mismatching_redirect_uri")

// AuthClient is a registered OAuth client. Values are built once at startup
// and shared read-only between requests.
type AuthClient struct {
	ClientID string
	// Secret is nil for public clients, which must use PKCE.
	Secret                  *string
	RedirectURIs            []string
	OverrideRedirectURI     string
	Permission              string
	AllowTokenIntrospection bool
	ReturnUserinfoInIDToken bool
	Profile                 ClientProfile
}

func (c *AuthClient) IsPublic() bool { return c.Secret == nil }

// CheckSecret compares in constant time. Public clients never match.
func (c *AuthClient) CheckSecret(secret string) bool {
	if c.Secret == nil || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*c.Secret), []byte(secret)) == 1
}

// ResolveRedirectURI picks the effective redirect URI: the override when
// configured, else the single registered URI when none is requested, else
// an exact match. The result is URL-decoded.
func (c *AuthClient) ResolveRedirectURI(requested string) (string, error) {
	var resolved string
	switch {
	case c.OverrideRedirectURI != "":
		resolved = c.OverrideRedirectURI
	case requested == "":
		if len(c.RedirectURIs) != 1 {
			return "", ErrMismatchingRedirectURI
		}
		resolved = c.RedirectURIs[0]
	case slices.Contains(c.RedirectURIs, requested):
		resolved = requested
	default:
		return "", ErrMismatchingRedirectURI
	}

	decoded, err := url.PathUnescape(resolved)
	if err != nil {
		return resolved, nil
	}
	return decoded, nil
}

func (c *AuthClient) FilterScopes(requested []scope.Scope) (granted, refused []scope.Scope) {
	return c.Profile.FilterScopes(requested)
}

func (c *AuthClient) GetUserinfo(subject Subject) map[string]any {
	return c.Profile.GetUserinfo(subject)
}

func (c *AuthClient) UserinfoInIDToken() bool {
	return c.ReturnUserinfoInIDToken || c.Profile.UserinfoInIDToken()
}
