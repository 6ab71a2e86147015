package api

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/api/handler"
	"github.com/bantec-cbs/interbank-orchestrator/internal/api/middleware"
	"github.com/bantec-cbs/interbank-orchestrator/internal/api/spec"
	"github.com/bantec-cbs/interbank-orchestrator/internal/config"
	"github.com/bantec-cbs/interbank-orchestrator/internal/ledger"
	"github.com/bantec-cbs/interbank-orchestrator/internal/orchestrator"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *orchestrator.Registry
	local     *store.Local
	ledger    *ledger.Sync
	directory switchclient.Directory
}

func NewRouter(cfg *config.Config, logger *zap.Logger, registry *orchestrator.Registry, local *store.Local, ledgerSync *ledger.Sync, directory switchclient.Directory) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		local:     local,
		ledger:    ledgerSync,
		directory: directory,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(chiMiddleware.RealIP)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.local)
	transferHandler := handler.NewTransferHandler(api.registry, api.logger)
	accountHandler := handler.NewAccountHandler(api.local, api.ledger, api.logger)
	bankHandler := handler.NewBankHandler(api.directory, api.logger)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Business endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimiter(api.cfg.RateLimitRPS))

		r.Post("/v1/transfers", transferHandler.SubmitTransfer)
		r.Get("/v1/transfers/{id}", transferHandler.GetTransfer)
		r.Post("/v1/transfers/{id}/retry", transferHandler.RetryTransfer)
		r.Post("/v1/transfers/{id}/cancel", transferHandler.CancelTransfer)

		r.Get("/v1/accounts", accountHandler.ListAccounts)
		r.Get("/v1/accounts/{id}/history", accountHandler.GetHistory)

		r.Get("/v1/banks", bankHandler.ListBanks)
	})

	return r
}
