package domain

import "context"

// Service is the user directory consumed by the authorization server.
type Service interface {
	// Authenticate always verifies a password hash, a dummy one when the email
	// is unknown, and returns ErrInvalidCredentials for both failure modes.
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
}

type CreateUserRequest struct {
	Email     string
	Password  string
	Firstname string
	Name      string
	Nickname  string
}
