package client

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := Build([]config.AuthClientConfig{
		{ClientID: "nextcloud", Secret: "s3cret", RedirectURI: []string{"https://cloud.example.org/cb"}, Profile: "nextcloud"},
		{ClientID: "app", RedirectURI: []string{"https://app.example.org/cb", "https://app.example.org/alt"}, Profile: "app"},
		{ClientID: "wiki", RedirectURI: []string{"https%3A%2F%2Fwiki.example.org%2Fcb"}},
		{ClientID: "forced", Secret: "x", RedirectURI: []string{"https://a/cb"}, OverrideRedirectURI: "https://forced.example.org/cb"},
	}, zap.NewNop())
	require.NoError(t, err)
	return registry
}

func TestBuildRejectsUnknownProfile(t *testing.T) {
	_, err := Build([]config.AuthClientConfig{{ClientID: "x", RedirectURI: []string{"https://x"}, Profile: "gitlab"}}, nil)
	require.True(t, errors.Is(err, ErrUnknownProfile))
}

func TestResolveRedirectURI(t *testing.T) {
	registry := testRegistry(t)

	cases := []struct {
		name      string
		clientID  string
		requested string
		want      string
		wantErr   error
	}{
		{name: "single default", clientID: "nextcloud", want: "https://cloud.example.org/cb"},
		{name: "exact match", clientID: "app", requested: "https://app.example.org/alt", want: "https://app.example.org/alt"},
		{name: "no default among many", clientID: "app", wantErr: ErrMismatchingRedirectURI},
		{name: "mismatch", clientID: "nextcloud", requested: "https://evil.example.org/cb", wantErr: ErrMismatchingRedirectURI},
		{name: "decoded", clientID: "wiki", want: "https://wiki.example.org/cb"},
		{name: "override wins", clientID: "forced", requested: "https://evil.example.org/cb", want: "https://forced.example.org/cb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := registry.Get(tc.clientID)
			require.True(t, ok)
			got, err := c.ResolveRedirectURI(tc.requested)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCheckSecret(t *testing.T) {
	registry := testRegistry(t)
	nextcloud, _ := registry.Get("nextcloud")
	app, _ := registry.Get("app")

	require.True(t, nextcloud.CheckSecret("s3cret"))
	require.False(t, nextcloud.CheckSecret("s3cre"))
	require.False(t, nextcloud.CheckSecret(""))
	require.True(t, app.IsPublic())
	require.False(t, app.CheckSecret(""))
}

func TestFilterScopes(t *testing.T) {
	registry := testRegistry(t)
	nextcloud, _ := registry.Get("nextcloud")
	app, _ := registry.Get("app")

	granted, refused := nextcloud.FilterScopes(scope.Parse("openid API profile"))
	require.Equal(t, []scope.Scope{scope.OpenID, scope.Profile}, granted)
	require.Equal(t, []scope.Scope{scope.API}, refused)

	granted, refused = app.FilterScopes(scope.Parse("API"))
	require.Equal(t, []scope.Scope{scope.API}, granted)
	require.Empty(t, refused)
}

func TestUserinfoShapes(t *testing.T) {
	registry := testRegistry(t)
	nickname := "ali"
	subject := Subject{
		User: &authdomain.User{
			ID:        snowflake.ID(42),
			Email:     "alice@school.fr",
			Firstname: "Alice",
			Name:      "Martin",
			Nickname:  &nickname,
		},
		Groups: []string{"eclair"},
	}

	nextcloud, _ := registry.Get("nextcloud")
	info := nextcloud.GetUserinfo(subject)
	require.Equal(t, "42", info["sub"])
	require.Equal(t, "ali", info["preferred_username"])
	require.Equal(t, "Martin", info["family_name"])
	require.Equal(t, []string{"eclair"}, info["ownCloudGroups"])

	wiki, _ := registry.Get("wiki")
	require.Equal(t, map[string]any{"sub": "42", "name": "Alice"}, wiki.GetUserinfo(subject))

	piwigo, _ := LookupProfile(ProfilePiwigo)
	require.Equal(t, []string{"eclair"}, piwigo.GetUserinfo(subject)["piwigo_groups"])
}
