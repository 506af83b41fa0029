package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	opdscribe "github.com/snarg/opd-scribe"
	"github.com/snarg/opd-scribe/internal/api"
	"github.com/snarg/opd-scribe/internal/config"
	"github.com/snarg/opd-scribe/internal/metrics"
	"github.com/snarg/opd-scribe/internal/session"
	"github.com/snarg/opd-scribe/internal/style"
	"github.com/snarg/opd-scribe/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var (
		overrides   config.Overrides
		showVersion bool
	)
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.StyleFile, "style-file", "", "YAML style profile (overrides STYLE_FILE)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("opd-scribe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Style defaults
	styles := style.NewStore()
	if cfg.StyleFile != "" {
		styleLog := log.With().Str("component", "style").Logger()
		watcher := style.NewWatcher(styles, cfg.StyleFile, styleLog)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("path", cfg.StyleFile).Msg("failed to load style file")
		}
		defer watcher.Stop()
	}
	log.Info().Str("source", styles.Source()).Msg("style defaults loaded")

	// Sessions
	sessions := session.NewStore(cfg.SessionTTL, log)
	sessions.StartSweeper(cfg.SessionSweepInterval)
	defer sessions.StopSweeper()

	prometheus.MustRegister(metrics.NewCollector(sessions))

	// Analysis engine
	engine := transcribe.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiUploadURL, cfg.GeminiModel, cfg.RequestTimeout)
	scribe := transcribe.NewClient(transcribe.ClientOptions{
		Provider: engine,
		Languages: transcribe.Languages{
			Source: cfg.SourceLanguage,
			Target: cfg.TargetLanguage,
			Region: cfg.PracticeRegion,
		},
		TempDir:         cfg.TempDir,
		PollInterval:    cfg.PollInterval,
		PollMaxInterval: cfg.PollMaxInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
		PollMaxWait:     cfg.PollMaxWait,
		OnTransition: func(t transcribe.Transition) {
			metrics.ObservePhase(string(t.From), string(t.To), t.Elapsed, string(t.Kind))
		},
		OnPoll: metrics.ObservePoll,
		Log:    log.With().Str("component", "scribe").Logger(),
	})
	log.Info().
		Str("engine", engine.Name()).
		Str("model", engine.Model()).
		Str("source_language", cfg.SourceLanguage).
		Str("target_language", cfg.TargetLanguage).
		Bool("default_api_key", cfg.GeminiAPIKey != "").
		Msg("scribe configured")

	webFiles, err := fs.Sub(opdscribe.WebFiles, "web")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open embedded web files")
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.ServerOptions{
		Processor: scribe,
		Engine:    engine,
		Styles:    styles,
		Sessions:  sessions,
		WebFiles:  webFiles,
		OpenAPI:   opdscribe.OpenAPISpec,
	}, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("opd-scribe stopped")
}
