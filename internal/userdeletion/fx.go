package userdeletion

import "go.uber.org/fx"

var Module = fx.Module("userdeletion",
	fx.Provide(AsChecker(NewWalletChecker)),
	fx.Provide(NewRegistry),
)
