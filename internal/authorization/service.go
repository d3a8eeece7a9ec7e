package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidUser       = errors.New("invalid user")
	ErrInvalidGroup      = errors.New("invalid group")
	ErrInvalidPermission = errors.New("invalid permission")
)

// Service answers the group questions asked by the authorization server and
// the wallet. A permission is granted to groups; users inherit the
// permissions of every group they belong to.
type Service interface {
	HasPermission(ctx context.Context, userID string, permission string) (bool, error)
	IsMemberOfGroup(ctx context.Context, userID string, group string) (bool, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	AddUserToGroup(ctx context.Context, userID string, group string) error
	RemoveUserFromGroup(ctx context.Context, userID string, group string) error
	GrantPermission(ctx context.Context, group string, permission string) error
}
