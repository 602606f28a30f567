package runtimeconfig

import (
	"github.com/smallbiznis/trunkgate/internal/runtimeconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("runtimeconfig.service",
	fx.Provide(service.New),
)
