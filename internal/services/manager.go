// Package services wires storage, settings, detectors and the scan pipeline
// together for the CLI and the TUI.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/complyscan/internal/clock"
	"github.com/j-veylop/complyscan/internal/config"
	"github.com/j-veylop/complyscan/internal/costgate"
	"github.com/j-veylop/complyscan/internal/db"
	"github.com/j-veylop/complyscan/internal/detector"
	"github.com/j-veylop/complyscan/internal/detector/llm"
	"github.com/j-veylop/complyscan/internal/detector/regex"
	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/metrics"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/ratelimit"
	"github.com/j-veylop/complyscan/internal/scanner"
	"github.com/j-veylop/complyscan/internal/services/settings"
	"github.com/j-veylop/complyscan/internal/walker"
)

// maxConcurrentScans bounds RunScans.
const maxConcurrentScans = 4

type (
	// ScanEvent wraps a pipeline event of one scan.
	ScanEvent struct {
		scanner.Event
	}

	// ScanDoneEvent is emitted when RunScan returns.
	ScanDoneEvent struct {
		Result *scanner.Result
		Error  error
		ScanID string
	}

	// SettingsChangedEvent is emitted after the settings file is reloaded.
	SettingsChangedEvent struct {
		Settings settings.Settings
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (ScanEvent) isServiceEvent()            {}
func (ScanDoneEvent) isServiceEvent()        {}
func (SettingsChangedEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()           {}

// ScanRequest describes one scan. Zero fields fall back to the settings
// file and the configuration.
type ScanRequest struct {
	// CostLimit overrides the settings budget when non-nil.
	CostLimit *float64
	Path      string
	Mode      models.ScanMode
	ScanID    string
	BatchSize int
}

// Option customises a Manager.
type Option func(*Manager)

// WithPaidDetector replaces the Anthropic detector.
func WithPaidDetector(d detector.Detector) Option {
	return func(m *Manager) { m.paid = d }
}

// WithDesktopNotifier replaces the desktop notification function.
func WithDesktopNotifier(fn func(title, message string) error) Option {
	return func(m *Manager) { m.desktopNotify = fn }
}

// WithClock sets the clock used by the rate limiter.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// Manager owns the long-lived collaborators shared by every scan.
type Manager struct {
	mu            sync.RWMutex
	cfg           *config.Config
	database      *db.DB
	settings      *settings.Service
	gate          *costgate.Gate
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	orchestrator  *scanner.Orchestrator
	paid          detector.Detector
	clock         clock.Clock
	limiter       *ratelimit.Limiter
	desktopNotify func(title, message string) error
	subscribers   []*subscriber
	stopChan      chan struct{}
	closeOnce     sync.Once
}

// NewManager creates a new service manager.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:           cfg,
		gate:          costgate.New(),
		registry:      prometheus.NewRegistry(),
		clock:         clock.NewSystemClock(),
		desktopNotify: func(title, message string) error { return beeep.Notify(title, message, "") },
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	m.metrics, err = metrics.New(m.registry)
	if err != nil {
		return nil, err
	}

	m.settings, err = settings.New(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}

	m.limiter, err = ratelimit.New(m.settings.Get().RateLimit, m.clock)
	if err != nil {
		_ = m.settings.Close()
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		_ = m.settings.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cheap, err := regex.New()
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	if m.paid == nil && cfg.HasAnthropicKey() {
		client, err := llm.New(llm.Config{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
			Admit:   m.checkAndConsume,
		})
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.paid = client
	}
	if m.paid == nil {
		logger.Warn("ANTHROPIC_API_KEY not set, LLM analysis disabled")
	}

	m.orchestrator, err = scanner.New(scanner.Deps{
		Cheap:    cheap,
		Paid:     m.paid,
		Limiter:  scanner.AdmitterFunc(m.checkAndConsume),
		Gate:     m.gate,
		Store:    m.database,
		Notifier: scanner.NotifierFunc(m.handleScanEvent),
		Metrics:  m.metrics,
	})
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	m.settings.OnChange(m.applySettings)
	go m.routeEvents()

	return m, nil
}

// routeEvents forwards settings errors to subscribers.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.settings.Events():
			if event.Type == settings.EventError {
				m.broadcast(ErrorEvent{Service: "settings", Error: event.Error})
			}
		case <-m.stopChan:
			return
		}
	}
}

// applySettings rebuilds the limiter when its quotas change, carrying over
// what each window has already spent. Running scans pick up the new limiter
// on their next paid call.
func (m *Manager) applySettings(s settings.Settings) {
	m.mu.Lock()
	if m.limiter.Config() != s.RateLimit {
		limiter, err := m.limiter.Reconfigured(s.RateLimit, m.clock)
		if err != nil {
			m.mu.Unlock()
			m.broadcast(ErrorEvent{Service: "settings", Error: err})
			return
		}
		m.limiter = limiter
		logger.Info("Rate limiter rebuilt", "config", s.RateLimit)
	}
	m.mu.Unlock()

	m.broadcast(SettingsChangedEvent{Settings: s})
}

func (m *Manager) checkAndConsume() error {
	m.mu.RLock()
	limiter := m.limiter
	m.mu.RUnlock()
	return limiter.CheckAndConsume()
}

// handleScanEvent broadcasts pipeline events and raises a desktop
// notification when a scan waits for a cost decision.
func (m *Manager) handleScanEvent(e scanner.Event) {
	m.broadcast(ScanEvent{Event: e})

	if e.Type != scanner.EventCostLimitReached || m.desktopNotify == nil {
		return
	}
	title := "Cost limit reached"
	body := fmt.Sprintf("Scan %s spent $%.2f of $%.2f after %d/%d files. Continue or stop?",
		shortID(e.ScanID), e.Cost, e.CostLimit, e.FilesDone, e.FilesTotal)
	if err := m.desktopNotify(title, body); err != nil {
		logger.Debug("desktop notification failed", "error", err)
	}
}

// RunScan scans one project directory and persists the outcome. The result
// is non-nil whenever the scan got as far as starting.
func (m *Manager) RunScan(ctx context.Context, req ScanRequest) (*scanner.Result, error) {
	res, err := m.runScan(ctx, req)
	scanID := req.ScanID
	if res != nil {
		scanID = res.Scan.ID
	}
	m.broadcast(ScanDoneEvent{ScanID: scanID, Result: res, Error: err})
	return res, err
}

func (m *Manager) runScan(ctx context.Context, req ScanRequest) (*scanner.Result, error) {
	current := m.settings.Get()

	mode := current.ScanMode
	if req.Mode != "" {
		parsed, err := models.ParseScanMode(string(req.Mode))
		if err != nil {
			return nil, err
		}
		mode = parsed
	}
	costLimit := current.CostLimitUSD
	if req.CostLimit != nil {
		costLimit = *req.CostLimit
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = m.cfg.BatchSize
	}
	scanID := req.ScanID
	if scanID == "" {
		scanID = uuid.NewString()
	}

	src, err := walker.NewDir(req.Path)
	if err != nil {
		return nil, err
	}

	project, err := m.database.UpsertProject(ctx, "", src.Root)
	if err != nil {
		return nil, err
	}

	scan := models.Scan{
		StartedAt:   time.Now(),
		ID:          scanID,
		Mode:        mode,
		Status:      models.ScanRunning,
		ProjectPath: project.Path,
		ProjectID:   project.ID,
		CostLimit:   costLimit,
	}
	if err := m.database.CreateScan(ctx, scan); err != nil {
		return nil, err
	}

	res, err := m.orchestrator.Run(ctx, src, scanner.Options{
		ScanID:            scanID,
		ProjectPath:       project.Path,
		ProjectID:         project.ID,
		Mode:              mode,
		CostLimit:         costLimit,
		BatchSize:         batchSize,
		PromptTimeout:     m.cfg.CostPromptTimeout,
		ContinueOnTimeout: current.ContinueOnTimeout(),
	})
	if err != nil && res != nil {
		if finishErr := m.database.FinishScan(context.WithoutCancel(ctx), res.Scan); finishErr != nil {
			logger.Error("failed to mark scan failed", "scan_id", scanID, "error", finishErr)
		}
	}
	return res, err
}

// RunScans runs several scans concurrently. They share the rate limiter and
// the cost gate but never each other's budget. Results are in request order.
func (m *Manager) RunScans(ctx context.Context, reqs []ScanRequest) ([]*scanner.Result, error) {
	results := make([]*scanner.Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(maxConcurrentScans)
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = m.RunScan(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// RespondToCostLimit delivers a continue (true) or stop (false) decision to
// a scan waiting at its cost limit.
func (m *Manager) RespondToCostLimit(scanID string, proceed bool) error {
	return m.gate.Respond(scanID, proceed)
}

// PendingCostLimit reports whether scanID is waiting for a decision.
func (m *Manager) PendingCostLimit(scanID string) bool {
	return m.gate.Pending(scanID)
}

// broadcast queues an event for all subscribers without blocking. A slow
// subscriber loses progress events but never a cost prompt or a scan end.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		if !sub.push(event) {
			logger.Debug("Dropped event for slow subscriber", "event", fmt.Sprintf("%T", event))
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	sub := newSubscriber()

	m.mu.Lock()
	m.subscribers = append(m.subscribers, sub)
	m.mu.Unlock()

	return sub.ch, WaitForEvent(sub.ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// Unsubscribe removes a subscriber. Undelivered events are discarded and
// the channel is closed shortly after.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub.ch == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			sub.stop()
			break
		}
	}
}

// ListScans returns recent scans, newest first.
func (m *Manager) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	return m.database.ListScans(ctx, limit)
}

// ScanDetail is a stored scan with its findings and spend.
type ScanDetail struct {
	Scan       *models.Scan
	Cost       *models.ScanCostRecord
	Violations []models.Violation
}

// GetScanDetail loads a scan, its violations and its cost record. Cost is
// nil for scans that never reached a checkpoint.
func (m *Manager) GetScanDetail(ctx context.Context, scanID string) (*ScanDetail, error) {
	scan, err := m.database.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	violations, err := m.database.GetViolations(ctx, scanID)
	if err != nil {
		return nil, err
	}
	cost, err := m.database.GetScanCost(ctx, scanID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return &ScanDetail{Scan: scan, Violations: violations, Cost: cost}, nil
}

// DeleteScan removes a scan with its violations and cost record.
func (m *Manager) DeleteScan(ctx context.Context, scanID string) error {
	return m.database.DeleteScan(ctx, scanID)
}

// UpdateViolationStatus dismisses or marks a pending violation fixed.
func (m *Manager) UpdateViolationStatus(ctx context.Context, id int64, status models.ViolationStatus) error {
	return m.database.UpdateViolationStatus(ctx, id, status)
}

// Settings returns the settings service.
func (m *Manager) Settings() *settings.Service {
	return m.settings
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// LLMEnabled reports whether a paid detector is configured.
func (m *Manager) LLMEnabled() bool {
	return m.paid != nil
}

// MetricsHandler serves the manager's Prometheus registry.
func (m *Manager) MetricsHandler() http.Handler {
	return metrics.Handler(m.registry)
}

// Close closes the manager and all its services.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.stopChan)

		m.mu.Lock()
		for _, sub := range m.subscribers {
			sub.stop()
		}
		m.subscribers = nil
		m.mu.Unlock()

		if m.settings != nil {
			if err := m.settings.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if m.database != nil {
			if err := m.database.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
