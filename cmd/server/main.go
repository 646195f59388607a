package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker/amqp"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker/mqtt"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/broker/stomp"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/config"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/logging"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/router"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/sentry"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/services"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg := config.Load()

	// Error reporting
	enabled, err := sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment)
	if err != nil {
		slog.Warn("sentry disabled", slog.Any("error", err))
	}
	if enabled {
		defer sentry.Flush()
	}

	// Broker drivers by URL scheme
	connector := newConnector(cfg)
	sessions := services.NewSessionManager(connector)
	defer sessions.Close()

	// Create router
	r := router.New(cfg, sessions, connector.Schemes())
	defer r.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("addr", addr),
			slog.Any("schemes", connector.Schemes()),
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func newConnector(cfg *config.Config) *broker.Connector {
	connector := broker.NewConnector()
	connector.Register(stomp.New(cfg.BrokerDialTimeout, cfg.BrokerHeartbeat), stomp.Schemes...)
	connector.Register(amqp.New(cfg.BrokerDialTimeout, cfg.BrokerHeartbeat), amqp.Schemes...)
	connector.Register(mqtt.New(cfg.BrokerDialTimeout, cfg.BrokerHeartbeat, cfg.MQTTClientIDPrefix), mqtt.Schemes...)
	connector.Register(broker.NewMemory(), "vm")
	return connector
}
