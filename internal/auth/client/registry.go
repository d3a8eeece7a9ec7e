package client

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/hyperion/internal/config"
	"go.uber.org/zap"
)

var ErrUnknownProfile = errors.New("auth_clients: unknown profile")

// Registry maps client ids to their trust properties. It has no write path.
type Registry struct {
	clients map[string]*AuthClient
}

// NewRegistry resolves every configured client and its profile. Errors abort
// startup.
func NewRegistry(cfg config.Config, log *zap.Logger) (*Registry, error) {
	return Build(cfg.AuthClients, log)
}

func Build(entries []config.AuthClientConfig, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	registry := &Registry{clients: make(map[string]*AuthClient, len(entries))}

	for _, entry := range entries {
		profile, ok := LookupProfile(entry.Profile)
		if !ok {
			return nil, fmt.Errorf("%w %q for client %s", ErrUnknownProfile, entry.Profile, entry.ClientID)
		}
		if _, exists := registry.clients[entry.ClientID]; exists {
			return nil, fmt.Errorf("%w: %s", config.ErrDuplicateClientID, entry.ClientID)
		}

		c := &AuthClient{
			ClientID:                entry.ClientID,
			RedirectURIs:            append([]string(nil), entry.RedirectURI...),
			OverrideRedirectURI:     entry.OverrideRedirectURI,
			Permission:              entry.Permission,
			AllowTokenIntrospection: entry.AllowTokenIntrospection,
			ReturnUserinfoInIDToken: entry.ReturnUserinfoInIDToken,
			Profile:                 profile,
		}
		if entry.Secret != "" {
			secret := entry.Secret
			c.Secret = &secret
		}
		registry.clients[c.ClientID] = c
	}

	for _, id := range registry.IDs() {
		c := registry.clients[id]
		log.Info("auth client registered",
			zap.String("client_id", id),
			zap.String("profile", c.Profile.Name()),
			zap.Bool("pkce_only", c.IsPublic()),
			zap.Bool("introspection", c.AllowTokenIntrospection),
			zap.String("permission", c.Permission),
		)
	}
	return registry, nil
}

func (r *Registry) Get(clientID string) (*AuthClient, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
