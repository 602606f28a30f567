package credit

import (
	"github.com/smallbiznis/trunkgate/internal/credit/repository"
	"github.com/smallbiznis/trunkgate/internal/credit/service"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvidePayments),
	fx.Provide(service.New),
	fx.Invoke(func(c *subservice.Service, e *invservice.Engine, s *service.Service) {
		c.BindCredit(s)
		e.BindAutoPayer(s)
	}),
)
