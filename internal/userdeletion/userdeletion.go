// Package userdeletion asks every registered module whether a user account
// may be deleted.
package userdeletion

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Checker is implemented by modules that hold user data which must be
// settled before the account goes away. An empty reason means the module
// does not object.
type Checker interface {
	Module() string
	Check(ctx context.Context, userID snowflake.ID) (string, error)
}

type Reason struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

type Params struct {
	fx.In

	Checkers []Checker `group:"deletion_checkers"`
	Log      *zap.Logger
}

type Registry struct {
	checkers []Checker
	log      *zap.Logger
}

func NewRegistry(p Params) *Registry {
	checkers := make([]Checker, 0, len(p.Checkers))
	for _, c := range p.Checkers {
		if c != nil {
			checkers = append(checkers, c)
		}
	}
	return &Registry{checkers: checkers, log: p.Log.Named("userdeletion")}
}

// Check queries every checker and returns the objections. No reasons means
// the user can be deleted.
func (r *Registry) Check(ctx context.Context, userID snowflake.ID) ([]Reason, error) {
	reasons := []Reason{}
	for _, c := range r.checkers {
		reason, err := c.Check(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%s deletion check: %w", c.Module(), err)
		}
		if reason != "" {
			reasons = append(reasons, Reason{Module: c.Module(), Reason: reason})
		}
	}
	if len(reasons) > 0 {
		r.log.Info("user deletion refused",
			zap.String("user_id", userID.String()),
			zap.Int("reasons", len(reasons)),
		)
	}
	return reasons, nil
}

// AsChecker annotates a constructor so its result joins the checker group.
func AsChecker(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Checker)),
		fx.ResultTags(`group:"deletion_checkers"`),
	)
}
