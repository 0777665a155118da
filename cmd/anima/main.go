// Command anima is the main entry point for the anima virtual companion
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anima-voice/anima/internal/config"
	"github.com/anima-voice/anima/internal/observe"
	"github.com/anima-voice/anima/internal/server"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configFlag := flag.String("config", "", "path to the main YAML configuration file")
	flag.Parse()

	configPath := config.ResolvePath(*configFlag)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(configPath, reg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "anima: config file %q not found — copy config/config.yaml to get started\n", configPath)
		} else {
			fmt.Fprintf(os.Stderr, "anima: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.System))

	slog.Info("anima starting",
		"version", version,
		"config", configPath,
		"host", cfg.System.Host,
		"port", cfg.System.Port,
		"log_level", cfg.System.LogLevel,
	)

	// ── Persona ───────────────────────────────────────────────────────────────
	configDir := filepath.Dir(configPath)
	persona, err := config.LoadPersona(configDir, cfg.Persona)
	if err != nil {
		slog.Error("failed to load persona", "persona", cfg.Persona, "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── HTTP server ───────────────────────────────────────────────────────────
	manager := server.NewManager(cfg, configDir, persona, reg, metrics)
	srv := server.NewServer(manager)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.System.Host, cfg.System.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, persona)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.AppConfig, persona *config.Persona) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          anima — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printService("Persona", persona.Name)
	printService("Agent", serviceLabel(cfg, config.CategoryAgent))
	printService("ASR", serviceLabel(cfg, config.CategoryASR))
	printService("TTS", serviceLabel(cfg, config.CategoryTTS))
	printService("VAD", serviceLabel(cfg, config.CategoryVAD))
	printService("Listen addr", fmt.Sprintf("%s:%d", cfg.System.Host, cfg.System.Port))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func serviceLabel(cfg *config.AppConfig, category config.Category) string {
	sc := cfg.Services.Get(category)
	name := cfg.ServiceNames.Name(category)
	if sc == nil || name == "" {
		return "(not configured)"
	}
	return name + " / " + sc.ProviderType()
}

func printService(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s : %-19s  ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(sys config.SystemConfig) *slog.Logger {
	lvl := sys.LogLevel.SlogLevel()
	if sys.Debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
