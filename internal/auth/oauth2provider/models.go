package oauth2provider

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AuthorizationCode is a pending authorization-code grant. Codes are looked
// up by the sha256 of the value handed to the client and deleted on first
// redemption.
type AuthorizationCode struct {
	CodeHash            string       `gorm:"column:code_hash;type:text;primaryKey"`
	ClientID            string       `gorm:"column:client_id;type:text;not null"`
	UserID              snowflake.ID `gorm:"column:user_id;not null;index"`
	Scope               string       `gorm:"column:scope;type:text;not null;default:''"`
	RedirectURI         string       `gorm:"column:redirect_uri;type:text;not null"`
	Nonce               *string      `gorm:"column:nonce;type:text"`
	CodeChallenge       *string      `gorm:"column:code_challenge;type:text"`
	CodeChallengeMethod *string      `gorm:"column:code_challenge_method;type:text"`
	ExpireOn            time.Time    `gorm:"column:expire_on;not null;index"`
}

func (AuthorizationCode) TableName() string { return "oauth_authorization_codes" }

// RefreshToken is never mutated after creation except to set RevokedOn.
type RefreshToken struct {
	TokenHash string       `gorm:"column:token_hash;type:text;primaryKey"`
	ClientID  string       `gorm:"column:client_id;type:text;not null;index:idx_refresh_client_user"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index:idx_refresh_client_user"`
	Scope     string       `gorm:"column:scope;type:text;not null;default:''"`
	Nonce     *string      `gorm:"column:nonce;type:text"`
	CreatedOn time.Time    `gorm:"column:created_on;not null"`
	ExpireOn  time.Time    `gorm:"column:expire_on;not null"`
	RevokedOn *time.Time   `gorm:"column:revoked_on"`
}

func (RefreshToken) TableName() string { return "oauth_refresh_tokens" }

func (t RefreshToken) Revoked() bool { return t.RevokedOn != nil }

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&AuthorizationCode{}, &RefreshToken{}}
}
