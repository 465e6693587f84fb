package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poolwise/poolmarket/internal/server"
	"github.com/poolwise/poolmarket/internal/server/handler"
	"github.com/poolwise/poolmarket/internal/server/ws"
	"github.com/poolwise/poolmarket/internal/service"
)

// ServeMode runs the full ledger stack against Postgres and Redis: the HTTP
// and WebSocket API, the durable event stream, and the archive job when
// enabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.runLedger(ctx, deps)
}

// MemoryMode runs the same stack entirely in-process for development. No
// state survives shutdown and the event stream endpoints are absent.
func (a *App) MemoryMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting memory mode; state is lost on shutdown")
	return a.runLedger(ctx, deps)
}

// runLedger builds the service layer on top of the wired dependencies and
// starts the long-running goroutines: the HTTP server, the WebSocket hub, and
// the settled-market archiver. It blocks until the context is cancelled or a
// goroutine fails.
func (a *App) runLedger(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	owner := a.cfg.Ledger.OwnerAddress()

	markets := service.NewMarketService(
		deps.Ledger, deps.Admin, deps.MarketCache, deps.SignalBus,
		deps.LockManager, deps.Notifier, owner, a.logger,
	)
	betting := service.NewBettingService(
		deps.Ledger, deps.Admin, deps.MarketCache, deps.SignalBus,
		deps.LockManager, a.logger,
	)
	settlement := service.NewSettlementService(
		deps.Ledger, deps.Admin, deps.SignalBus, deps.LockManager, a.logger,
	)
	admin := service.NewAdminService(
		deps.Admin, deps.SignalBus, deps.Notifier, owner, a.logger,
	)
	treasury := service.NewTreasuryService(deps.Accounts, deps.Bridge, a.logger)

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Pingers, a.logger),
		Markets:    handler.NewMarketHandler(markets, a.logger),
		Bets:       handler.NewBetHandler(betting, a.logger),
		Settlement: handler.NewSettlementHandler(settlement, a.logger),
		Admin:      handler.NewAdminHandler(admin, a.logger),
		Accounts:   handler.NewAccountHandler(treasury, a.logger),
	}
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, service.LedgerStream, a.logger)
	}

	// WebSocket hub re-broadcasts ledger events to subscribed clients. It
	// needs the signal bus, so memory mode runs without it.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		}, handlers, deps.RateLimiter, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	} else {
		a.logger.WarnContext(ctx, "HTTP server disabled; only background jobs are running")
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunLoop(ctx)
		})
	}

	a.logger.InfoContext(ctx, "ledger running",
		slog.String("owner", owner.Hex()),
		slog.Bool("bridge", deps.Bridge != nil),
		slog.Bool("archive", deps.Archiver != nil),
	)

	return g.Wait()
}
