package pack

import (
	"github.com/smallbiznis/trunkgate/internal/pack/repository"
	"github.com/smallbiznis/trunkgate/internal/pack/service"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pack.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideInvoices),
	fx.Provide(service.New),
	fx.Invoke(func(c *subservice.Service, s *service.Service) {
		c.BindPackages(s)
	}),
)
