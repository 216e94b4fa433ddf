package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/j-veylop/complyscan/internal/app"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/scanner"
	"github.com/j-veylop/complyscan/internal/services"
	"github.com/j-veylop/complyscan/internal/ui/tabs/history"
	"github.com/j-veylop/complyscan/internal/ui/tabs/info"
	"github.com/j-veylop/complyscan/internal/ui/tabs/scans"
)

const drainTimeout = time.Second

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan one or more source trees for compliance violations",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Scan mode (regex_only, smart, analyze_all); defaults to the settings file",
			},
			&cli.Float64Flag{
				Name:    "budget",
				Aliases: []string{"b"},
				Usage:   "Per-scan LLM budget in USD; 0 disables the cost limit",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Files between cost checkpoints",
			},
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Print progress and ask cost questions on stdin",
			},
		},
		Action: runScan,
	}
}

func runScan(c *cli.Context) error {
	reqs, err := buildRequests(c)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	headless := c.Bool("no-tui")
	if f, ok := c.App.Writer.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		headless = true
	}

	if headless {
		return runHeadless(c.Context, s.manager, reqs, c.App.Reader, c.App.Writer)
	}
	return runTUI(c.Context, s, reqs, c.App.Writer)
}

func buildRequests(c *cli.Context) ([]services.ScanRequest, error) {
	if c.NArg() == 0 {
		return nil, cli.Exit("scan needs at least one PATH", 2)
	}

	var mode models.ScanMode
	if c.IsSet("mode") {
		m, err := models.ParseScanMode(c.String("mode"))
		if err != nil {
			return nil, cli.Exit(err.Error(), 2)
		}
		mode = m
	}

	var budget *float64
	if c.IsSet("budget") {
		b := c.Float64("budget")
		budget = &b
	}

	reqs := make([]services.ScanRequest, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		reqs = append(reqs, services.ScanRequest{
			Path:      abs,
			Mode:      mode,
			CostLimit: budget,
			BatchSize: c.Int("batch-size"),
		})
	}
	return reqs, nil
}

func runTUI(ctx context.Context, s *session, reqs []services.ScanRequest, out io.Writer) error {
	model := app.NewModel(s.manager, reqs)
	state := model.GetState()
	model.SetTabs([]app.Tab{
		scans.New(state),
		history.New(state, s.manager),
		info.New(state, s.cfg, s.manager),
	})

	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, runErr := p.Run()
	// Cancels unfinished scans and waits for them to persist.
	model.Shutdown()
	if runErr != nil {
		return fmt.Errorf("error running TUI: %w", runErr)
	}

	return printProgress(out, state.GetScans())
}

func runHeadless(ctx context.Context, mgr *services.Manager, reqs []services.ScanRequest, in io.Reader, out io.Writer) error {
	out = &lockedWriter{w: out}
	events, _ := mgr.Subscribe()

	p := &prompter{
		respond: mgr.RespondToCostLimit,
		pending: mgr.PendingCostLimit,
		in:      bufio.NewReader(in),
		out:     out,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(events)
	}()

	results, err := mgr.RunScans(ctx, reqs)

	// Drain the remaining progress lines. The prompter may be stuck on a
	// question that timed out, so the wait is bounded.
	mgr.Unsubscribe(events)
	select {
	case <-done:
	case <-time.After(drainTimeout):
	}

	fmt.Fprintln(out)
	if printErr := printResults(out, results); printErr != nil {
		return printErr
	}
	return err
}

// lockedWriter serialises writes from the prompter and the summary.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// prompter prints pipeline events and answers cost limit prompts from in.
type prompter struct {
	respond func(scanID string, proceed bool) error
	// pending reports whether a prompt is still open. Nil means always.
	pending func(scanID string) bool
	in      *bufio.Reader
	out     io.Writer
}

func (p *prompter) run(events <-chan services.ServiceEvent) {
	for ev := range events {
		e, ok := ev.(services.ScanEvent)
		if !ok {
			continue
		}
		p.handle(e.Event)
	}
}

func (p *prompter) handle(e scanner.Event) {
	switch e.Type {
	case scanner.EventStarted:
		fmt.Fprintf(p.out, "scan %s: %d files, budget %s\n", shortID(e.ScanID), e.FilesTotal, formatBudget(e.CostLimit))
	case scanner.EventCostLimitReached:
		if p.pending != nil && !p.pending(e.ScanID) {
			fmt.Fprintf(p.out, "scan %s: cost limit prompt expired\n", shortID(e.ScanID))
			return
		}
		proceed := p.ask(e)
		if err := p.respond(e.ScanID, proceed); err != nil {
			fmt.Fprintf(p.out, "decision for scan %s not applied: %v\n", shortID(e.ScanID), err)
		}
	case scanner.EventCostLimitResolved:
		fmt.Fprintf(p.out, "scan %s: %s\n", shortID(e.ScanID), e.Decision)
	case scanner.EventFinished:
		status := string(e.Status)
		if e.AbortReason != "" {
			status += " (" + string(e.AbortReason) + ")"
		}
		fmt.Fprintf(p.out, "scan %s %s: %d/%d files, %d violations, $%.4f\n",
			shortID(e.ScanID), status, e.FilesDone, e.FilesTotal, e.Violations, e.Cost)
	}
}

// ask reads a yes/no answer. Anything but y or yes, including EOF, stops.
func (p *prompter) ask(e scanner.Event) bool {
	fmt.Fprintf(p.out, "\nScan %s reached its %s budget: $%.4f spent, %d/%d files done.\nContinue LLM analysis? [y/N] ",
		shortID(e.ScanID), formatBudget(e.CostLimit), e.Cost, e.FilesDone, e.FilesTotal)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
