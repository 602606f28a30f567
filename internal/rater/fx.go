package rater

import "go.uber.org/fx"

var Module = fx.Module("rater",
	fx.Provide(New),
)
