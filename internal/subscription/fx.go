package subscription

import (
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/rater"
	runtimeservice "github.com/smallbiznis/trunkgate/internal/runtimeconfig/service"
	"github.com/smallbiznis/trunkgate/internal/subscription/repository"
	"github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *rater.Client) service.AccountProvisioner { return c }),
	fx.Provide(func(b *branchservice.Service) service.BranchDirectory { return b }),
	fx.Provide(func(r *runtimeservice.Service) service.RuntimeSettings { return r }),
	fx.Provide(func(q *taskqueue.Queue) service.Dispatcher { return q }),
	fx.Provide(func(n *trunk.Notifier) service.TrunkGateway { return n }),
	fx.Provide(service.New),
)
