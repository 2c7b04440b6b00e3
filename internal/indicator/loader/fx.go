package loader

import "go.uber.org/fx"

var Module = fx.Module("indicator.loader",
	fx.Provide(NewXLSXSource),
)
