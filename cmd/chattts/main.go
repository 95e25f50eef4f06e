// Command chattts is a Discord bot that reads a guild's text channel aloud
// in the voice channel of whoever is typing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/chattts/internal/app"
	"github.com/MrWong99/chattts/internal/config"
	"github.com/MrWong99/chattts/internal/observe"
	"github.com/MrWong99/chattts/pkg/provider/tts"
	"github.com/MrWong99/chattts/pkg/provider/tts/edge"
	"github.com/MrWong99/chattts/pkg/provider/tts/gcloud"
	"github.com/MrWong99/chattts/pkg/provider/tts/gtranslate"
	"github.com/MrWong99/chattts/pkg/provider/tts/piper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "chattts: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chattts: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chattts: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(observe.ParseLevel(string(cfg.Server.LogLevel)))
	logger, logCloser, err := observe.NewLogger(observe.LogOptions{
		Level:      level,
		File:       cfg.Server.LogFile,
		MaxSizeMB:  cfg.Server.LogMaxSizeMB,
		MaxBackups: cfg.Server.LogMaxBackups,
		MaxAgeDays: cfg.Server.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chattts: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("chattts starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"storage", cfg.Storage.Backend,
	)

	reg := config.NewRegistry()
	registerEngines(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{app.WithLevelVar(level)}
	if *watch {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("bot ready; press Ctrl+C to shut down", "engines", reg.Kinds())

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerEngines wires the built-in engine factories into reg.
func registerEngines(reg *config.Registry) {
	reg.RegisterEngine(tts.KindCloudNeural, func(ctx context.Context, ec config.EnginesConfig) (tts.Engine, error) {
		creds := []byte(ec.CloudNeural.CredentialsJSON)
		if len(creds) == 0 && ec.CloudNeural.CredentialsFile != "" {
			data, err := os.ReadFile(ec.CloudNeural.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("%w: gcloud: read credentials file: %w", tts.ErrConfiguration, err)
			}
			creds = data
		}
		return gcloud.New(ctx, creds, gcloud.WithLanguageCode(ec.CloudNeural.LanguageCode))
	})

	reg.RegisterEngine(tts.KindBasicCloud, func(_ context.Context, ec config.EnginesConfig) (tts.Engine, error) {
		return gtranslate.New(gtranslate.WithLanguage(ec.BasicCloud.Language)), nil
	})

	reg.RegisterEngine(tts.KindLocal, func(_ context.Context, ec config.EnginesConfig) (tts.Engine, error) {
		return piper.New(ec.Local.Model, piper.WithBinary(ec.Local.Binary))
	})

	reg.RegisterEngine(tts.KindEdge, func(_ context.Context, ec config.EnginesConfig) (tts.Engine, error) {
		return edge.New(ec.Edge.Voice), nil
	})
}
