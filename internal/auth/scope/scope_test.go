package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeepsOrderAndDropsDuplicates(t *testing.T) {
	got := Parse("  openid profile openid   API ")
	require.Equal(t, []Scope{OpenID, Profile, API}, got)
	require.Equal(t, "openid profile API", Join(got))
}

func TestHasIsCaseSensitive(t *testing.T) {
	scopes := Parse("api profile")
	require.False(t, Has(scopes, API))
	require.True(t, Has(scopes, Profile))
}

func TestParseEmpty(t *testing.T) {
	require.Empty(t, Parse(""))
	require.Equal(t, "", Join(nil))
}
