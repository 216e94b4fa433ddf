// Package main is the entry point for complyscan. It loads configuration,
// wires the service manager and runs either the terminal UI or a headless
// scan.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/j-veylop/complyscan/internal/config"
	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/services"
	"github.com/j-veylop/complyscan/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, version.Info())
	}

	return &cli.App{
		Name:    "complyscan",
		Usage:   "Cost-governed compliance scanner for source trees",
		Version: version.GetVersion(),
		Reader:  in,
		Writer:  out,
		// main reports errors and picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			historyCommand(),
			showCommand(),
			deleteCommand(),
		},
	}
}

// session holds what every command needs. Close releases it.
type session struct {
	cfg     *config.Config
	manager *services.Manager
	logFile *os.File
	metrics *http.Server
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	s := &session{cfg: cfg}

	logger.SetLevel(cfg.LogLevel)
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.logFile = f
		logger.SetOutput(f)
	}

	s.manager, err = services.NewManager(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if cfg.MetricsAddr != "" {
		s.serveMetrics()
	}

	return s, nil
}

func (s *session) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.manager.MetricsHandler())
	s.metrics = &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", s.cfg.MetricsAddr)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
}

// Close stops the metrics server, closes the manager and the log file.
func (s *session) Close() {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			logger.Warn("Error closing services", "error", err)
		}
	}
	if s.logFile != nil {
		logger.SetOutput(io.Discard)
		_ = s.logFile.Close()
	}
}
