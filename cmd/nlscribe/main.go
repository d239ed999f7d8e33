package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/nlscribe/external/audio"
	configloader "github.com/foxseedlab/nlscribe/external/config"
	"github.com/foxseedlab/nlscribe/external/discord"
	metricsimpl "github.com/foxseedlab/nlscribe/external/metrics"
	repositoryimpl "github.com/foxseedlab/nlscribe/external/repository"
	tokenimpl "github.com/foxseedlab/nlscribe/external/token"
	transportimpl "github.com/foxseedlab/nlscribe/external/transport"
	webhookimpl "github.com/foxseedlab/nlscribe/external/webhook"
	"github.com/foxseedlab/nlscribe/internal/audio"
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/notifier"
	"github.com/foxseedlab/nlscribe/internal/session"
	"github.com/samber/do/v2"
)

const discordLookupTimeout = 10 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "region", cfg.Region, "input", cfg.AudioInput)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	os.Exit(run(cfg, injector))
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	tokenimpl.RegisterDI(injector)
	transportimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	metricsimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) int {
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		return 1
	}
	openInput, err := do.Invoke[audio.Opener](injector)
	if err != nil {
		slog.Error("failed to resolve audio opener", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		prom := do.MustInvoke[*metricsimpl.Prometheus](injector)
		go func() {
			if err := prom.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}
	logNotifierTarget(ctx, do.MustInvoke[notifier.Notifier](injector))

	src, err := openInput(cfg.AudioInput)
	if err != nil {
		slog.Error("failed to open audio input", "error", err, "input", cfg.AudioInput)
		return 1
	}

	job := session.Job{Name: jobName(cfg.AudioInput), Source: src}
	slog.Info("startup: running transcription job", "job", job.Name)
	if err := manager.Run(ctx, job); err != nil {
		slog.Error("transcription job failed", "error", err, "job", job.Name)
		return 1
	}
	slog.Info("transcription job completed", "job", job.Name)
	return 0
}

func logNotifierTarget(ctx context.Context, n notifier.Notifier) {
	dc, ok := n.(*discord.Client)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, discordLookupTimeout)
	defer cancel()
	name, err := dc.ChannelName(ctx)
	if err != nil {
		slog.Warn("failed to resolve discord channel", "error", err)
		return
	}
	slog.Info("discord notifier ready", "channel", name)
}

// jobName derives a stable job key from the input, e.g. "lecture" for
// "/data/lecture.wav" and "sine" for "sine:10s".
func jobName(input string) string {
	if name, _, ok := strings.Cut(input, ":"); ok && !strings.ContainsAny(name, `/\.`) {
		return name
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
