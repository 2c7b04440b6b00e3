package repository

import "go.uber.org/fx"

var Module = fx.Module("indicator.repository",
	fx.Provide(New),
)
