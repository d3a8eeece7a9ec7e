package oauth2provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Store provides persistence for authorization codes and refresh tokens.
// Every lookup takes the raw value; hashing happens here.
type Store interface {
	CreateAuthorizationCode(ctx context.Context, code string, row *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// DeleteAuthorizationCode reports false when another request already
	// consumed the code.
	DeleteAuthorizationCode(ctx context.Context, code string) (bool, error)
	PurgeExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)

	CreateRefreshToken(ctx context.Context, token string, row *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeRefreshToken reports false when the token was already revoked.
	RevokeRefreshToken(ctx context.Context, token string, at time.Time) (bool, error)
	RevokeRefreshTokensForClientUser(ctx context.Context, clientID string, userID snowflake.ID, at time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateAuthorizationCode(ctx context.Context, code string, row *AuthorizationCode) error {
	row.CodeHash = hashToken(code)
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *gormStore) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var row AuthorizationCode
	err := s.db.WithContext(ctx).Where("code_hash = ?", hashToken(code)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormStore) DeleteAuthorizationCode(ctx context.Context, code string) (bool, error) {
	tx := s.db.WithContext(ctx).
		Where("code_hash = ?", hashToken(code)).
		Delete(&AuthorizationCode{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) PurgeExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("expire_on < ?", now).
		Delete(&AuthorizationCode{})
	return tx.RowsAffected, tx.Error
}

func (s *gormStore) CreateRefreshToken(ctx context.Context, token string, row *RefreshToken) error {
	row.TokenHash = hashToken(token)
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *gormStore) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var row RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormStore) RevokeRefreshToken(ctx context.Context, token string, at time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked_on IS NULL", hashToken(token)).
		Update("revoked_on", at)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) RevokeRefreshTokensForClientUser(ctx context.Context, clientID string, userID snowflake.ID, at time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("client_id = ? AND user_id = ? AND revoked_on IS NULL", clientID, userID).
		Update("revoked_on", at)
	return tx.RowsAffected, tx.Error
}

func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
