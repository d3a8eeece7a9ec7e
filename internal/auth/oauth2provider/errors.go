package oauth2provider

import (
	"errors"
	"net/http"
)

var (
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrUnknownClient   = errors.New("unknown client")
	ErrLoginRequired   = errors.New("invalid credentials")
	ErrNotAllowed      = errors.New("user not member of allowed group")
)

// OAuth error codes from RFC 6749 section 5.2, plus the terminal page codes
// of the authorization flow.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeMismatchingRedirectURI  = "mismatching_redirect_uri"
	CodeInvalidClientID         = "invalid_client_id"
	CodeNotMemberOfGroup        = "user_not_member_of_allowed_group"
)

// Error is an OAuth protocol error, serialized as {error, error_description}.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// ErrorCode is used as a low-cardinality metrics label.
func (e *Error) ErrorCode() string { return e.Code }

func invalidRequest(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description, Status: http.StatusBadRequest}
}

func invalidClient() *Error {
	return &Error{Code: CodeInvalidClient, Description: "Invalid client_id or secret", Status: http.StatusBadRequest}
}

// AsError unwraps err into an OAuth error, if it is one.
func AsError(err error) (*Error, bool) {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr, true
	}
	return nil, false
}
