package oauth2provider

import "github.com/smallbiznis/hyperion/internal/auth/scope"

// Discovery is served for both /.well-known/openid-configuration and
// /.well-known/oauth-authorization-server.
type Discovery struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RequestParameterSupported         bool     `json:"request_parameter_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimTypesSupported               []string `json:"claim_types_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	ClaimsParameterSupported          bool     `json:"claims_parameter_supported"`
	RequestURIParameterSupported      bool     `json:"request_uri_parameter_supported"`
	RequireRequestURIRegistration     bool     `json:"require_request_uri_registration"`
}

func (s *Service) Discovery() Discovery {
	base := s.cfg.OIDCClientURL
	return Discovery{
		Issuer:                            s.cfg.Issuer,
		AuthorizationEndpoint:             s.cfg.ClientURL + "auth/authorize",
		TokenEndpoint:                     base + "auth/token",
		UserinfoEndpoint:                  base + "auth/userinfo",
		JWKSURI:                           base + "oidc/authorization-flow/jwks_uri",
		IntrospectionEndpoint:             base + "auth/introspect",
		RequestParameterSupported:         true,
		ScopesSupported:                   scope.All(),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{GrantAuthorizationCode, GrantRefreshToken},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic", "none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		ClaimTypesSupported:               []string{"normal"},
		ClaimsSupported: []string{
			"sub", "name", "preferred_username", "given_name", "family_name",
			"middle_name", "nickname", "profile", "picture", "website", "gender",
			"zone_info", "locale", "updated_time", "birthdate", "email",
			"email_verified", "phone_number", "address",
		},
	}
}
