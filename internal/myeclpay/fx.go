package myeclpay

import (
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
	"github.com/smallbiznis/hyperion/internal/myeclpay/repository"
	"github.com/smallbiznis/hyperion/internal/myeclpay/service"
	"go.uber.org/fx"
)

var Module = fx.Module("myeclpay.service",
	fx.Provide(repository.Provide),
	fx.Provide(receipt.New),
	fx.Provide(service.NewService),
)
