package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/foxseedlab/nlscribe/internal/gatewaytest"
)

type mockConfig struct {
	Env               string   `env:"ENV" envDefault:"development"`
	Addr              string   `env:"MOCK_ADDR" envDefault:":8080"`
	Token             string   `env:"MOCK_TOKEN" envDefault:"mock-token"`
	AccessKeySecret   string   `env:"MOCK_ACCESS_KEY_SECRET"`
	Sentences         []string `env:"MOCK_SENTENCES" envSeparator:"|" envDefault:"大家好|今天讲第三章|谢谢大家"`
	FramesPerSentence int      `env:"MOCK_FRAMES_PER_SENTENCE" envDefault:"20"`
	PartialResults    bool     `env:"MOCK_PARTIAL_RESULTS" envDefault:"true"`
}

func main() {
	var cfg mockConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	logLevel := slog.LevelInfo
	if cfg.Env == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	gw := gatewaytest.New(gatewaytest.Options{
		Token:           cfg.Token,
		AccessKeySecret: cfg.AccessKeySecret,
		Script: gatewaytest.Script{
			Sentences:         cfg.Sentences,
			FramesPerSentence: cfg.FramesPerSentence,
			PartialResults:    cfg.PartialResults,
		},
		Logger: logger,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: gw, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("mock gateway listening", "addr", cfg.Addr, "ws_path", "/ws/v1", "token_path", "/token")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("mock gateway failed", "error", err)
		os.Exit(1)
	}
}
