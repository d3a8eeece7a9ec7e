package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// AuthClientConfig is one entry of the auth client registry file.
type AuthClientConfig struct {
	ClientID            string   `mapstructure:"client_id"`
	Secret              string   `mapstructure:"secret"`
	RedirectURI         []string `mapstructure:"redirect_uri"`
	Profile             string   `mapstructure:"profile"`
	OverrideRedirectURI string   `mapstructure:"override_redirect_uri"`
	// Permission restricts the client to users holding it.
	Permission              string `mapstructure:"permission"`
	AllowTokenIntrospection bool   `mapstructure:"allow_token_introspection"`
	ReturnUserinfoInIDToken bool   `mapstructure:"return_userinfo_in_id_token"`
}

var (
	ErrEmptyClientID     = errors.New("auth_clients: client_id cannot be empty")
	ErrDuplicateClientID = errors.New("auth_clients: duplicate client_id")
	ErrNoRedirectURI     = errors.New("auth_clients: client has no redirect_uri")
)

// LoadAuthClients reads the auth_clients list. An explicit path must exist;
// without one the usual locations are searched and a missing file yields an
// empty registry.
func LoadAuthClients(path string) ([]AuthClientConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("auth_clients")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/hyperion")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HYPERION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read auth clients: %w", err)
		}
		return nil, nil
	}

	var clients []AuthClientConfig
	if err := v.UnmarshalKey("auth_clients", &clients); err != nil {
		return nil, fmt.Errorf("decode auth clients: %w", err)
	}
	if err := validateAuthClients(clients); err != nil {
		return nil, err
	}
	return clients, nil
}

func validateAuthClients(clients []AuthClientConfig) error {
	seen := make(map[string]struct{}, len(clients))
	for i := range clients {
		c := &clients[i]
		c.ClientID = strings.TrimSpace(c.ClientID)
		c.Secret = strings.TrimSpace(c.Secret)
		c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
		if c.ClientID == "" {
			return ErrEmptyClientID
		}
		if _, ok := seen[c.ClientID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateClientID, c.ClientID)
		}
		seen[c.ClientID] = struct{}{}
		if len(c.RedirectURI) == 0 && c.OverrideRedirectURI == "" {
			return fmt.Errorf("%w: %s", ErrNoRedirectURI, c.ClientID)
		}
	}
	return nil
}
