package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/auth/password"
	"github.com/smallbiznis/hyperion/internal/auth/repository"
	"github.com/smallbiznis/hyperion/pkg/db"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (authdomain.Service, authdomain.Repository) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return New(Params{Log: zap.NewNop(), Repo: repo, GenID: node}), repo
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:     "Alice@School.fr",
		Password:  "correct-password",
		Firstname: "Alice",
		Name:      "Martin",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	user, err := svc.Authenticate(ctx, "alice@school.fr", "correct-password")
	if err != nil {
		t.Fatalf("expected authentication to succeed, got %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}

	if _, err := svc.Authenticate(ctx, "alice@school.fr", "wrong-password"); !errors.Is(err, authdomain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@school.fr", "correct-password"); !errors.Is(err, authdomain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "not an email", "x"); !errors.Is(err, authdomain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for malformed email, got %v", err)
	}
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	now := time.Now().UTC()
	user := &authdomain.User{
		ID:           snowflake.ID(77),
		Email:        "legacy@school.fr",
		PasswordHash: string(legacy),
		Firstname:    "Old",
		Name:         "Account",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "legacy@school.fr", "legacy-password"); err != nil {
		t.Fatalf("expected legacy login to succeed, got %v", err)
	}
	stored, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if password.NeedsRehash(stored.PasswordHash) {
		t.Fatalf("expected hash to be upgraded, got %q", stored.PasswordHash)
	}
	if !password.Verify("legacy-password", stored.PasswordHash) {
		t.Fatalf("expected upgraded hash to verify")
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := authdomain.CreateUserRequest{Email: "bob@school.fr", Password: "strong-password"}
	if _, err := svc.CreateUser(ctx, req); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if _, err := svc.CreateUser(ctx, req); !errors.Is(err, authdomain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "carol@school.fr", Password: "123"}); !errors.Is(err, authdomain.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestGetUserByID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Email: "dan@school.fr", Password: "strong-password"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	found, err := svc.GetUserByID(ctx, user.Subject())
	if err != nil || found.Email != "dan@school.fr" {
		t.Fatalf("expected to find user, got %v %v", found, err)
	}
	if _, err := svc.GetUserByID(ctx, "not-a-number"); !errors.Is(err, authdomain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
