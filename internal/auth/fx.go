package auth

import (
	"github.com/smallbiznis/hyperion/internal/auth/client"
	"github.com/smallbiznis/hyperion/internal/auth/repository"
	"github.com/smallbiznis/hyperion/internal/auth/service"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(client.NewRegistry),
	fx.Provide(token.NewCodec),
	fx.Invoke(ensureClientRegistry),
)

func ensureClientRegistry(_ *client.Registry) {}
