package operator

import (
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/operator/repository"
	"github.com/smallbiznis/trunkgate/internal/operator/service"
	"github.com/smallbiznis/trunkgate/internal/rater"
	"go.uber.org/fx"
)

var Module = fx.Module("operator.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideProfits),
	fx.Provide(func(c *rater.Client) service.RoutingInstaller { return c }),
	fx.Provide(service.New),
	fx.Invoke(func(e *invservice.Engine, s *service.Service) {
		e.BindProfits(s)
	}),
)
