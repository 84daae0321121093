package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-chess-server/internal/botsession"
	"github.com/park285/cheese-chess-server/internal/chess"
	appcfg "github.com/park285/cheese-chess-server/internal/config"
	"github.com/park285/cheese-chess-server/internal/httpapi"
	"github.com/park285/cheese-chess-server/internal/livews"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/render"
	"github.com/park285/cheese-chess-server/internal/store"
	"github.com/park285/cheese-chess-server/internal/store/memstore"
	"github.com/park285/cheese-chess-server/internal/store/redisstore"
	"github.com/park285/cheese-chess-server/internal/store/sqlstore"
	"go.uber.org/zap"
)

// backend bundles whatever the configured driver provides.
type backend struct {
	games   store.GameStore
	users   store.UserStore
	archive store.ResultArchive
	closers []func() error
}

func (b *backend) close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}
}

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, reserver, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close(logger)

	engine, err := chess.NewEngine(chess.EngineConfig{
		BinaryPath: cfg.StockfishPath,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
	}, logger.Named("engine"))
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	defer engine.Close()
	if idle := cfg.EngineIdleTimeout; idle > 0 {
		go engine.RunSweeper(ctx, idle/4, idle)
	}

	messages, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		return fmt.Errorf("message catalog: %w", err)
	}

	bot := botsession.NewManager(be.games, engine, logger.Named("bot"))
	defer bot.Close()

	regOpts := []match.Option{match.WithArchive(be.archive), match.WithLogger(logger.Named("match"))}
	if reserver != nil {
		regOpts = append(regOpts, match.WithReserver(reserver))
	}
	rooms := match.NewRegistry(regOpts...)

	live := livews.NewHandler(rooms, livews.Options{
		OutboundBuffer: cfg.LiveOutboundBuffer,
		Messages:       messages,
		Logger:         logger.Named("live"),
	})
	api := httpapi.New(httpapi.Config{
		Bot:      bot,
		Users:    be.users,
		Renderer: render.New(),
		Messages: messages,
		Live:     live,
		Logger:   logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openBackend picks the stores for cfg.StoreDriver. Room codes are
// reserved in Redis whenever REDIS_URL is set, so several instances
// behind one Redis never hand out the same code.
func openBackend(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (*backend, match.CodeReserver, error) {
	be := &backend{}
	var rs *redisstore.Store
	if cfg.RedisURL != "" {
		s, err := redisstore.Open(ctx, cfg.RedisURL, logger.Named("redis"))
		if err != nil {
			return nil, nil, err
		}
		rs = s
		be.closers = append(be.closers, s.Close)
	}

	switch cfg.StoreDriver {
	case appcfg.DriverMemory:
		ms := memstore.New()
		be.games, be.users, be.archive = ms, ms, ms
	case appcfg.DriverPostgres, appcfg.DriverSQLite:
		dialect, dsn := sqlstore.Postgres, cfg.DatabaseURL
		if cfg.StoreDriver == appcfg.DriverSQLite {
			dialect, dsn = sqlstore.SQLite, cfg.SQLitePath
		}
		ss, err := sqlstore.Open(ctx, dialect, dsn, logger.Named("sql"))
		if err != nil {
			be.close(logger)
			return nil, nil, err
		}
		be.closers = append(be.closers, ss.Close)
		be.games, be.users, be.archive = ss, ss, ss
	case appcfg.DriverRedis:
		be.games, be.users, be.archive = rs, rs, rs
	default:
		be.close(logger)
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if rs == nil {
		return be, nil, nil
	}
	return be, rs, nil
}
