// Package domain contains the resource owner model shared by the
// authorization server and the wallet.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User represents a resource owner account.
type User struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	Email        string            `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string            `gorm:"column:password_hash;type:text;not null"`
	Firstname    string            `gorm:"column:firstname;type:text;not null"`
	Name         string            `gorm:"column:name;type:text;not null"`
	Nickname     *string           `gorm:"column:nickname;type:text"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt    time.Time         `gorm:"not null"`
	UpdatedAt    time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Subject is the "sub" claim value for the user.
func (u User) Subject() string { return u.ID.String() }

func (u User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Name)
}

// PictureURL returns the avatar location stored in metadata, if any.
func (u User) PictureURL() string {
	if u.Metadata == nil {
		return ""
	}
	value, _ := u.Metadata["picture"].(string)
	return value
}
