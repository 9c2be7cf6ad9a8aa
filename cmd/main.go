package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/akkhan00/m5Chat/config"
	"github.com/akkhan00/m5Chat/internal/relay"
	"github.com/akkhan00/m5Chat/internal/store"
	httpx "github.com/akkhan00/m5Chat/internal/transport/http"
	"github.com/akkhan00/m5Chat/internal/transport/ws"
	"github.com/akkhan00/m5Chat/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting m5chat",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- store ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	// --- relay core ---
	reg := relay.NewRegistry()
	manager := relay.NewManager(st, reg, nil)
	reaper := relay.NewReaper(st, reg, cfg.Reaper.Interval, nil)
	go reaper.Run(ctx)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(manager, cfg.WS.PingInterval, cfg.WS.SendBuffer)
	handler := httpx.NewHandler(st, reg, nil)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- run ---
	errCh := make(chan error, 1)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	cancel() // stops the reaper

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
