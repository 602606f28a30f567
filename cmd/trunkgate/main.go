package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/internal/apilog"
	"github.com/smallbiznis/trunkgate/internal/branch"
	"github.com/smallbiznis/trunkgate/internal/cache"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	"github.com/smallbiznis/trunkgate/internal/credit"
	"github.com/smallbiznis/trunkgate/internal/customer"
	"github.com/smallbiznis/trunkgate/internal/invoice"
	"github.com/smallbiznis/trunkgate/internal/logger"
	"github.com/smallbiznis/trunkgate/internal/migration"
	"github.com/smallbiznis/trunkgate/internal/mis"
	"github.com/smallbiznis/trunkgate/internal/observability"
	"github.com/smallbiznis/trunkgate/internal/operator"
	"github.com/smallbiznis/trunkgate/internal/pack"
	"github.com/smallbiznis/trunkgate/internal/ratelimit"
	"github.com/smallbiznis/trunkgate/internal/rater"
	"github.com/smallbiznis/trunkgate/internal/reactor"
	"github.com/smallbiznis/trunkgate/internal/redis"
	"github.com/smallbiznis/trunkgate/internal/runtimeconfig"
	"github.com/smallbiznis/trunkgate/internal/scheduler"
	"github.com/smallbiznis/trunkgate/internal/server"
	"github.com/smallbiznis/trunkgate/internal/subscription"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"github.com/smallbiznis/trunkgate/internal/trunk"
	"github.com/smallbiznis/trunkgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(config.Load),
		fx.Provide(RegisterSnowflake),
		logger.Module,
		observability.Module,
		db.Module,
		migration.Module,
		redis.Module,
		cache.Module,
		clock.Module,
		taskqueue.Module,

		rater.Module,
		mis.Module,
		trunk.Module,

		customer.Module,
		branch.Module,
		runtimeconfig.Module,
		subscription.Module,
		pack.Module,
		invoice.Module,
		credit.Module,
		operator.Module,

		apilog.Module,
		ratelimit.Module,
		reactor.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
