// Command hiplay is a terminal voice assistant backed by the Gemini Live
// realtime API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hiplay/internal/config"
	"github.com/MrWong99/hiplay/internal/health"
	"github.com/MrWong99/hiplay/internal/observe"
	"github.com/MrWong99/hiplay/internal/session"
	"github.com/MrWong99/hiplay/internal/tools"
	"github.com/MrWong99/hiplay/internal/transcript"
	"github.com/MrWong99/hiplay/internal/tui"
	"github.com/MrWong99/hiplay/pkg/provider/live/gemini"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// historySize is how many persisted entries are shown on startup.
const historySize = 50

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "hiplay.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "run without the terminal UI and log the conversation")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hiplay: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(logLevel(cfg.Server.LogLevel))
	logOut, closeLog, err := logOutput(cfg.Server.LogFile, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hiplay: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level})))

	slog.Info("hiplay starting",
		"version", version,
		"config", *configPath,
		"from_file", fromFile,
		"voice", cfg.Live.Voice,
		"headless", *headless,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Transcript store (optional) ───────────────────────────────────────────
	var (
		store    transcript.Store
		checkers []health.Checker
	)
	if path := cfg.Transcript.Path; path != "" {
		s, err := transcript.Open(path)
		if err != nil {
			slog.Error("failed to open transcript store", "path", path, "err", err)
			return 1
		}
		defer s.Close()
		store = s
		checkers = append(checkers, health.Ping("transcript", s))
	}

	// ── Session manager ───────────────────────────────────────────────────────
	dev := newDevices(cfg.Audio)
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("audio device close error", "err", err)
		}
	}()

	scfg, voices := sessionConfig(cfg)
	mgr, err := session.New(scfg, session.Deps{
		Provider: gemini.New(cfg.Live.APIKey, providerOptions(cfg)...),
		Devices:  dev,
		Voices:   voices,
		Matcher:  tools.NewMatcher(),
		Store:    store,
		Metrics:  metrics,
	})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}
	defer mgr.Close()
	checkers = append(checkers, sessionReady(mgr.Status))

	if err := mgr.LoadHistory(ctx, historySize); err != nil {
		slog.Warn("failed to load transcript history", "err", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if fromFile {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config, d config.ConfigDiff) {
			applyReload(ctx, mgr, &level, old, new, d)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observe.Middleware(metrics)(tel.Handler))
		health.New(checkers...).Register(mux)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("metrics listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// Leaving the UI ends the process.
		defer cancel()
		if *headless {
			return runHeadless(gctx, mgr)
		}
		return runTUI(gctx, mgr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// loadConfig loads path. A missing file is not an error: defaults plus the
// environment are enough to run, and fromFile reports which case applied.
func loadConfig(path string) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		return nil, false, fmt.Errorf("config file %q not found and defaults are incomplete: %w", path, err)
	}
	return cfg, false, nil
}

// logOutput returns where logs go. The terminal UI owns stdout and stderr,
// so in UI mode logs go to the configured file or nowhere.
func logOutput(path string, headless bool) (io.Writer, func(), error) {
	if path == "" {
		if headless {
			return os.Stderr, func() {}, nil
		}
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// applyReload applies a changed config file to the running process.
func applyReload(ctx context.Context, mgr *session.Manager, level *slog.LevelVar, old, new *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(logLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if old.Live.APIKey != new.Live.APIKey || old.Live.BaseURL != new.Live.BaseURL || old.Live.SetupTimeout != new.Live.SetupTimeout {
		slog.Warn("live endpoint settings changed; restart hiplay to apply them")
	}
	if !d.SessionChanged() {
		return
	}
	scfg, voices := sessionConfig(new)
	if err := mgr.Reconfigure(ctx, scfg, voices); err != nil {
		slog.Warn("failed to apply reloaded config", "err", err)
		return
	}
	slog.Info("config reloaded", "voice", scfg.Voice.ID, "voices", len(voices))
}

func runTUI(ctx context.Context, mgr *session.Manager) error {
	p := tea.NewProgram(tui.New(ctx, mgr), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// runHeadless starts a session and logs the conversation until ctx ends.
func runHeadless(ctx context.Context, mgr *session.Manager) error {
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	var (
		last   = mgr.Status()
		logged = len(mgr.Transcript())
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mgr.Changes():
		}

		st := mgr.Status()
		if st.State != last.State || st.Reconnecting != last.Reconnecting || st.Voice.ID != last.Voice.ID {
			slog.Info("session status",
				"state", st.State,
				"reason", st.Reason,
				"voice", st.Voice.ID,
				"reconnecting", st.Reconnecting,
				"attempt", st.Attempt,
				"err", st.Err,
			)
		}
		last = st

		entries := mgr.Transcript()
		if len(entries) < logged {
			logged = 0
		}
		for _, e := range entries[logged:] {
			slog.Info("transcript", "sender", e.Sender, "text", e.Text, "links", len(e.Links))
		}
		logged = len(entries)

		if st.State == session.StateError && !st.Reconnecting {
			return fmt.Errorf("session failed: %w", st.Err)
		}
	}
}
