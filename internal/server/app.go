// Package server wires the chat backend together: database and migrations,
// services, the presence registry and delivery router, and the gRPC and
// HTTP (websocket) transports. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/delivery"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/dmitrijs2005/gophchat/internal/server/ws"

	gs "github.com/dmitrijs2005/gophchat/internal/server/grpc"
)

const tokenPurgeInterval = time.Hour

type runner interface {
	Run(ctx context.Context) error
}

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	registry   *presence.Registry
	purger     tokenPurger
	grpcServer runner
	httpServer runner
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	registry := presence.New(logger)
	router := delivery.NewRouter(registry, logger)

	us := services.NewUserService(db, rm, c)
	ms := services.NewMessageService(db, rm, router, logger)
	media := services.NewMediaService(c)
	sa := auth.NewSessionAuthenticator(c.SecretKey, us)

	grpcServer := gs.NewGRPCServer(c, logger, us, ms, media, registry, sa)
	httpServer := ws.NewHTTPServer(c.EndpointAddrHTTP, ws.NewMux(ws.NewHandler(c, logger, sa, registry)), logger)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		registry:   registry,
		purger:     us,
		grpcServer: grpcServer,
		httpServer: httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startServer runs r and cancels the whole app if it fails.
func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// purgeExpiredTokens deletes expired refresh tokens every interval until
// ctx is done.
func purgeExpiredTokens(ctx context.Context, p tokenPurger, interval time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Error(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "grpc", app.grpcServer)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		purgeExpiredTokens(ctx, app.purger, tokenPurgeInterval, app.logger)
	}()

	<-ctx.Done()

	// Ends open realtime sessions so both servers can drain.
	app.registry.Close()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close failed", "error", err)
		}
	}

	app.logger.Info(ctx, "App stopped")
}
