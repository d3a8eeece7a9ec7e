package client

import (
	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
)

// Subject is what a profile may reveal about the resource owner.
type Subject struct {
	User   *authdomain.User
	Groups []string
}

// ClientProfile decides which scopes a kind of client may obtain and how the
// userinfo document is shaped for it.
type ClientProfile interface {
	Name() string
	// FilterScopes returns the requested scopes the client may be granted, in
	// request order, and the refused ones.
	FilterScopes(requested []scope.Scope) (granted, refused []scope.Scope)
	GetUserinfo(subject Subject) map[string]any
	// UserinfoInIDToken is true for consumers that never call the userinfo
	// endpoint.
	UserinfoInIDToken() bool
}

type profile struct {
	name              string
	allowed           []scope.Scope
	userinfoInIDToken bool
	userinfo          func(Subject) map[string]any
}

func (p profile) Name() string { return p.name }

func (p profile) UserinfoInIDToken() bool { return p.userinfoInIDToken }

func (p profile) GetUserinfo(subject Subject) map[string]any {
	return p.userinfo(subject)
}

func (p profile) FilterScopes(requested []scope.Scope) ([]scope.Scope, []scope.Scope) {
	granted := make([]scope.Scope, 0, len(requested))
	var refused []scope.Scope
	for _, s := range requested {
		if scope.Has(p.allowed, s) {
			granted = append(granted, s)
		} else {
			refused = append(refused, s)
		}
	}
	return granted, refused
}

const (
	ProfileBase      = "base"
	ProfileApp       = "app"
	ProfileNextcloud = "nextcloud"
	ProfilePiwigo    = "piwigo"
)

var profiles = map[string]ClientProfile{
	ProfileBase: profile{
		name:     ProfileBase,
		allowed:  []scope.Scope{scope.OpenID, scope.Profile},
		userinfo: baseUserinfo,
	},
	ProfileApp: profile{
		name:     ProfileApp,
		allowed:  []scope.Scope{scope.API, scope.Auth, scope.OpenID, scope.Profile},
		userinfo: baseUserinfo,
	},
	ProfileNextcloud: profile{
		name:     ProfileNextcloud,
		allowed:  []scope.Scope{scope.OpenID, scope.Profile},
		userinfo: nextcloudUserinfo,
	},
	ProfilePiwigo: profile{
		name:     ProfilePiwigo,
		allowed:  []scope.Scope{scope.OpenID, scope.Profile},
		userinfo: piwigoUserinfo,
	},
}

// LookupProfile resolves a configured profile name. The empty name is the
// base profile.
func LookupProfile(name string) (ClientProfile, bool) {
	if name == "" {
		name = ProfileBase
	}
	p, ok := profiles[name]
	return p, ok
}

func baseUserinfo(s Subject) map[string]any {
	return map[string]any{
		"sub":  s.User.Subject(),
		"name": s.User.Firstname,
	}
}

func nextcloudUserinfo(s Subject) map[string]any {
	nickname := s.User.Firstname
	if s.User.Nickname != nil && *s.User.Nickname != "" {
		nickname = *s.User.Nickname
	}
	return map[string]any{
		"sub":                s.User.Subject(),
		"name":               s.User.Firstname,
		"given_name":         nickname,
		"family_name":        s.User.Name,
		"preferred_username": nickname,
		"ownCloudGroups":     groupsOrEmpty(s.Groups),
		"email":              s.User.Email,
		"picture":            s.User.PictureURL(),
	}
}

func piwigoUserinfo(s Subject) map[string]any {
	return map[string]any{
		"sub":           s.User.Subject(),
		"name":          s.User.Firstname,
		"piwigo_groups": groupsOrEmpty(s.Groups),
	}
}

func groupsOrEmpty(groups []string) []string {
	if groups == nil {
		return []string{}
	}
	return groups
}
