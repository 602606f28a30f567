// Package server is the Trunk-facing HTTP surface: the REST API, the
// Rater callback endpoints, and the metrics and health probes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/trunkgate/internal/apilog"
	branchservice "github.com/smallbiznis/trunkgate/internal/branch/service"
	"github.com/smallbiznis/trunkgate/internal/config"
	creditservice "github.com/smallbiznis/trunkgate/internal/credit/service"
	customerservice "github.com/smallbiznis/trunkgate/internal/customer/service"
	invservice "github.com/smallbiznis/trunkgate/internal/invoice/service"
	"github.com/smallbiznis/trunkgate/internal/observability"
	operatorservice "github.com/smallbiznis/trunkgate/internal/operator/service"
	packservice "github.com/smallbiznis/trunkgate/internal/pack/service"
	"github.com/smallbiznis/trunkgate/internal/ratelimit"
	"github.com/smallbiznis/trunkgate/internal/rater"
	runtimeconfigservice "github.com/smallbiznis/trunkgate/internal/runtimeconfig/service"
	subservice "github.com/smallbiznis/trunkgate/internal/subscription/service"
	"github.com/smallbiznis/trunkgate/internal/taskqueue"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	Metrics        *observability.Metrics
	APILogs        *apilog.Service
	Limiter        *ratelimit.TokenBucket
	Rater          *rater.Client
	Customers      *customerservice.Service
	Coordinator    *subservice.Service
	Branches       *branchservice.Service
	Destinations   *branchservice.DestinationService
	Engine         *invservice.Engine
	Credit         *creditservice.Service
	Packs          *packservice.Service
	Operators      *operatorservice.Service
	RuntimeConfigs *runtimeconfigservice.Service
	Queue          *taskqueue.Queue
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	rater          *rater.Client
	customers      *customerservice.Service
	coordinator    *subservice.Service
	branches       *branchservice.Service
	destinations   *branchservice.DestinationService
	invoices       *invservice.Engine
	credit         *creditservice.Service
	packs          *packservice.Service
	operators      *operatorservice.Service
	runtimeConfigs *runtimeconfigservice.Service
	queue          *taskqueue.Queue
}

func New(p Params) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(p.Metrics.GinMiddleware())
	r.Use(p.Limiter.Middleware())
	r.Use(p.APILogs.Middleware())
	r.Use(errorMiddleware())

	s := &Server{
		engine:         r,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("http.server"),
		rater:          p.Rater,
		customers:      p.Customers,
		coordinator:    p.Coordinator,
		branches:       p.Branches,
		destinations:   p.Destinations,
		invoices:       p.Engine,
		credit:         p.Credit,
		packs:          p.Packs,
		operators:      p.Operators,
		runtimeConfigs: p.RuntimeConfigs,
		queue:          p.Queue,
	}
	s.routes(p.Metrics)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(metrics *observability.Metrics) {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api", tokenAuth(s.cfg.TrunkToken, "trunk"))

	customers := api.Group("/customers")
	customers.GET("", s.listCustomers)
	customers.POST("", s.createCustomer)
	customers.GET("/:code", s.getCustomer)
	customers.GET("/:code/credit", s.getCustomerCredit)
	customers.POST("/:code/credit", s.issueCustomerCredit)
	customers.GET("/:code/subscriptions", s.listCustomerSubscriptions)
	customers.POST("/:code/subscriptions", s.createSubscription)

	subs := customers.Group("/:code/subscriptions/:sub")
	subs.GET("", s.getSubscription)
	subs.PATCH("", s.patchSubscription)
	subs.DELETE("", s.deallocateSubscription)
	subs.GET("/availability", s.subscriptionAvailability)
	subs.POST("/deallocate", s.deallocateSubscription)
	subs.POST("/add-balance", s.addBalance)
	subs.POST("/debit-balance", s.debitBalance)
	subs.POST("/base-balance", s.changeBaseBalance)
	subs.POST("/convert", s.convertSubscription)
	subs.POST("/credit", s.issueSubscriptionCredit)
	subs.GET("/invoices", s.listSubscriptionInvoices)
	subs.POST("/invoices", s.requestInterimInvoice)

	api.GET("/subscriptions", s.listSubscriptions)

	api.GET("/invoices", s.listInvoices)
	api.GET("/invoices/export", s.exportInvoices)
	api.GET("/invoices/:id", s.getInvoice)
	api.POST("/invoices", s.requestInterimInvoice)
	api.GET("/base-balance-invoices", s.listBaseInvoices)
	api.GET("/base-balance-invoices/:id", s.getBaseInvoice)

	api.GET("/credit-invoices", s.listCreditInvoices)
	api.GET("/credit-invoices/export", s.exportCreditInvoices)
	api.GET("/credit-invoices/:id", s.getCreditInvoice)
	api.POST("/credit-invoices", s.issueCreditInvoice)

	api.GET("/payments", s.listPayments)
	api.GET("/payments/:id", s.getPayment)
	api.POST("/payments", s.createPayment)
	api.POST("/payments/:id/approval", s.approvePayment)

	api.GET("/packages", s.listPackages)
	api.POST("/packages", s.createPackage)
	api.GET("/packages/:code", s.getPackage)
	api.PATCH("/packages/:code", s.updatePackage)
	api.GET("/package-invoices", s.listPackageInvoices)
	api.GET("/package-invoices/:id", s.getPackageInvoice)
	api.POST("/package-invoices", s.enrollPackage)

	api.GET("/branches", s.listBranches)
	api.POST("/branches", s.createBranch)
	api.GET("/branches/:code", s.getBranch)
	api.GET("/destinations", s.listDestinations)
	api.POST("/destinations", s.createDestination)
	api.PATCH("/destinations/:id", s.updateDestination)
	api.DELETE("/destinations/:id", s.deleteDestination)
	api.GET("/destinations/names", s.destinationNames)

	api.GET("/operators", s.listOperators)
	api.POST("/operators", s.createOperator)
	api.GET("/operators/:id", s.getOperator)
	api.PATCH("/operators/:id", s.updateOperator)
	api.GET("/profits", s.listProfits)

	api.GET("/runtime-configs", s.listRuntimeConfigs)
	api.POST("/runtime-configs", s.setRuntimeConfig)

	// Rater callbacks carry their own inbound secret.
	cgrates := s.engine.Group("/api/cgrates", tokenAuth(s.cfg.InboundToken, "cgrates"))
	cgrates.POST("/notification/:type", s.cgratesNotification)
	cgrates.POST("/expiry/:subscription", s.cgratesExpiry)
}

var Module = fx.Module("http.server",
	fx.Provide(New),
	fx.Invoke(func(c *rater.Client, m *observability.Metrics) {
		c.SetCallObserver(m.ObserveRaterCall)
	}),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
