package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	userPrefix  = "user:"
	groupPrefix = "group:"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the membership and permission policies stored in the
// casbin_rule table.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) HasPermission(_ context.Context, userID string, permission string) (bool, error) {
	subject, err := userSubject(userID)
	if err != nil {
		return false, err
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, ErrInvalidPermission
	}
	return s.enforcer.Enforce(subject, permission)
}

func (s *ServiceImpl) IsMemberOfGroup(_ context.Context, userID string, group string) (bool, error) {
	subject, err := userSubject(userID)
	if err != nil {
		return false, err
	}
	role, err := groupSubject(group)
	if err != nil {
		return false, err
	}
	return s.enforcer.HasRoleForUser(subject, role)
}

// GroupsOf lists the direct groups of a user, without prefix, sorted as
// stored.
func (s *ServiceImpl) GroupsOf(_ context.Context, userID string) ([]string, error) {
	subject, err := userSubject(userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.enforcer.GetRolesForUser(subject)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(roles))
	for _, role := range roles {
		if name, ok := strings.CutPrefix(role, groupPrefix); ok {
			groups = append(groups, name)
		}
	}
	return groups, nil
}

func (s *ServiceImpl) AddUserToGroup(_ context.Context, userID string, group string) error {
	subject, err := userSubject(userID)
	if err != nil {
		return err
	}
	role, err := groupSubject(group)
	if err != nil {
		return err
	}
	added, err := s.enforcer.AddRoleForUser(subject, role)
	if err != nil {
		return err
	}
	if added {
		s.log.Info("user added to group", zap.String("user_id", userID), zap.String("group", group))
	}
	return nil
}

func (s *ServiceImpl) RemoveUserFromGroup(_ context.Context, userID string, group string) error {
	subject, err := userSubject(userID)
	if err != nil {
		return err
	}
	role, err := groupSubject(group)
	if err != nil {
		return err
	}
	_, err = s.enforcer.DeleteRoleForUser(subject, role)
	return err
}

func (s *ServiceImpl) GrantPermission(_ context.Context, group string, permission string) error {
	role, err := groupSubject(group)
	if err != nil {
		return err
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return ErrInvalidPermission
	}
	_, err = s.enforcer.AddPolicy(role, permission)
	return err
}

func userSubject(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidUser
	}
	return userPrefix + userID, nil
}

func groupSubject(group string) (string, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return "", ErrInvalidGroup
	}
	return groupPrefix + group, nil
}
