package oauth2provider

import (
	"time"

	"github.com/smallbiznis/hyperion/internal/config"
)

// Config holds the authorization server settings derived from the
// application configuration.
type Config struct {
	ClientURL     string
	OIDCClientURL string
	Issuer        string
	CodeTTL       time.Duration
	RefreshTTL    time.Duration
}

func NewConfig(cfg config.Config) Config {
	return Config{
		ClientURL:     cfg.ClientURL,
		OIDCClientURL: cfg.OIDCClientURL(),
		Issuer:        cfg.Issuer(),
		CodeTTL:       cfg.AuthorizationCodeExpire,
		RefreshTTL:    cfg.RefreshTokenExpire,
	}
}

// LoginURL is the login UI the browser is sent to with the original query.
func (c Config) LoginURL(rawQuery string) string {
	return c.ClientURL + "calypsso/login?" + rawQuery
}

// MessageURL is the terminal error page for flows that must not redirect
// to an unverified client.
func (c Config) MessageURL(code string) string {
	return c.ClientURL + "calypsso/message?type=" + code
}
