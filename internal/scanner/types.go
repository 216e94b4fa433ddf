package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/pricing"
)

// ErrPersistence marks a failure to store final scan results. It is fatal
// to the scan.
var ErrPersistence = errors.New("failed to persist scan results")

// DefaultBatchSize is the number of files between budget checks.
const DefaultBatchSize = 10

// Source enumerates and reads the files of one project.
type Source interface {
	Files(ctx context.Context) ([]string, error)
	Read(path string) (string, error)
}

// Store persists scan progress and results.
type Store interface {
	// UpsertScanCost records running spend for live display.
	UpsertScanCost(ctx context.Context, rec models.ScanCostRecord) error
	// SaveScanResults stores the final violations and cost and closes out
	// the scan row.
	SaveScanResults(ctx context.Context, scan models.Scan, violations []models.Violation, cost models.ScanCostRecord) error
}

// Admitter grants or refuses one paid detector call without blocking.
type Admitter interface {
	CheckAndConsume() error
}

// AdmitterFunc adapts a function to Admitter.
type AdmitterFunc func() error

// CheckAndConsume calls f.
func (f AdmitterFunc) CheckAndConsume() error { return f() }

// Gate opens cost limit prompts.
type Gate interface {
	Open(scanID string) <-chan bool
	Release(scanID string)
}

// Notifier receives scan events. Delivery is best effort.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f.
func (f NotifierFunc) Notify(e Event) { f(e) }

// Policy decides whether the paid detector runs on a file.
type Policy func(mode models.ScanMode, path, content string) bool

// EventType identifies scan events.
type EventType int

const (
	EventStarted EventType = iota
	EventProgress
	EventCostLimitReached
	EventCostLimitResolved
	EventFinished
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCostLimitReached:
		return "cost_limit_reached"
	case EventCostLimitResolved:
		return "cost_limit_resolved"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event reports scan progress to observers.
type Event struct {
	ScanID      string
	File        string
	Decision    string
	Status      models.ScanStatus
	AbortReason models.AbortReason
	Type        EventType
	FilesDone   int
	FilesTotal  int
	Violations  int
	Cost        float64
	CostLimit   float64
}

// Options are the per-scan inputs read at scan start.
type Options struct {
	ScanID      string
	ProjectPath string
	Mode        models.ScanMode
	Pricing     pricing.Table
	// CostLimit is the budget in US dollars. Zero or less disables the gate.
	CostLimit float64
	BatchSize int
	// PromptTimeout bounds the wait for a decision. Zero waits indefinitely.
	PromptTimeout time.Duration
	// ContinueOnTimeout selects the decision applied when a prompt times out.
	ContinueOnTimeout bool
	ProjectID         int64
}

// FileError is a per-file failure that did not stop the scan.
type FileError struct {
	Err   error
	Path  string
	Stage string
}

func (e FileError) Error() string {
	return e.Stage + " " + e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one scan. It is returned even when the scan fails
// so callers can show what was collected.
type Result struct {
	Violations  []models.Violation
	FileErrors  []FileError
	Scan        models.Scan
	Cost        models.ScanCostRecord
	RateLimited int
	PaidCalls   int
	Prompted    bool
}
