package trunk

import (
	"github.com/smallbiznis/trunkgate/internal/trunk/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("trunk.notifier",
	fx.Provide(repository.Provide),
	fx.Provide(New),
)
