package branch

import (
	"github.com/smallbiznis/trunkgate/internal/branch/repository"
	"github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/rater"
	"go.uber.org/fx"
)

var Module = fx.Module("branch.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideDestinations),
	fx.Provide(func(c *rater.Client) service.DestinationBroadcaster { return c }),
	fx.Provide(service.New),
	fx.Provide(service.NewDestinations),
)
