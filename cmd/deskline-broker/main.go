package main

import (
	"context"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deskline/deskline-messenger/internal/broker"
	appConfig "github.com/deskline/deskline-messenger/internal/config"
	"github.com/deskline/deskline-messenger/internal/lib/logger/handlers/slogpretty"
	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found, skipping...")
	}

	cfg := appConfig.MustLoad()

	log := setupLogger(cfg.Env)
	log.Info("starting deskline-broker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broker.NewHub()
	go hub.Run(ctx)

	go func() {
		log.Info("status endpoint listening", slog.String("addr", cfg.Broker.StatusAddress))

		srv := &http.Server{
			Addr:    cfg.Broker.StatusAddress,
			Handler: broker.StatusRouter(hub),
		}

		if err := srv.ListenAndServe(); err != nil {
			log.Error("status endpoint stopped", sl.Err(err))
		}
	}()

	srv := broker.NewServer(
		cfg.Broker.Address,
		hub,
		cfg.Broker.WriteTimeout,
		cfg.Broker.SendQueueSize,
		log,
	)

	if err := srv.Listen(ctx); err != nil {
		log.Error("broker stopped", sl.Err(err))
		os.Exit(1)
	}

	log.Info("broker stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return setupPrettySlog()
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	return slog.New(opts.NewPrettyHandler(os.Stdout))
}
