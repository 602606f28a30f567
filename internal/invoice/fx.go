package invoice

import (
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/invoice/repository"
	"github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/mis"
	"github.com/smallbiznis/trunkgate/internal/rater"
	runtimeservice "github.com/smallbiznis/trunkgate/internal/runtimeconfig/service"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.engine",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideBase),
	fx.Provide(func(c *rater.Client) service.UsageSource { return c }),
	fx.Provide(func(b *branchservice.Service) service.PrefixResolver { return b }),
	fx.Provide(func(r *runtimeservice.Service) service.TaxSettings { return r }),
	fx.Provide(func(m *mis.Client) service.FeeProvider { return m }),
	fx.Provide(func(q *taskqueue.Queue) service.Delayer { return q }),
	fx.Provide(func(n *trunk.Notifier) service.Notifier { return n }),
	fx.Provide(service.New),
)
