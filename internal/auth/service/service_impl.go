package service

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/auth/password"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const minPasswordLength = 6

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("auth.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Authenticate(ctx context.Context, email, plain string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		password.Verify(plain, password.DummyHash)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, normalized)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		password.Verify(plain, password.DummyHash)
		return nil, domain.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if !password.Verify(plain, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if password.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, plain)
	}
	return user, nil
}

// rehash upgrades legacy hashes on successful login. Failure leaves the old
// hash in place.
func (s *Service) rehash(ctx context.Context, user *domain.User, plain string) {
	hashed, err := password.Hash(plain)
	if err != nil {
		s.log.Warn("password rehash failed", zap.Error(err))
		return
	}
	if err := s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"password_hash": hashed,
		"updated_at":    time.Now().UTC(),
	}); err != nil {
		s.log.Warn("password rehash failed", zap.String("user_id", user.Subject()), zap.Error(err))
		return
	}
	user.PasswordHash = hashed
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByID(ctx, snowflake.ID(parsed))
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hashed,
		Firstname:    strings.TrimSpace(req.Firstname),
		Name:         strings.TrimSpace(req.Name),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if nickname := strings.TrimSpace(req.Nickname); nickname != "" {
		user.Nickname = &nickname
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", user.Subject()))
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}
