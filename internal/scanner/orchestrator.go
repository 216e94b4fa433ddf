// Package scanner runs the cost-governed compliance scan pipeline.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/complyscan/internal/classify"
	"github.com/j-veylop/complyscan/internal/costgate"
	"github.com/j-veylop/complyscan/internal/detector"
	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/merge"
	"github.com/j-veylop/complyscan/internal/metrics"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/pricing"
	"github.com/j-veylop/complyscan/internal/ratelimit"
)

// Deps are the collaborators shared by every scan an Orchestrator runs.
type Deps struct {
	Cheap    detector.Detector
	Paid     detector.Detector
	Limiter  Admitter
	Gate     Gate
	Store    Store
	Notifier Notifier
	Policy   Policy
	Metrics  *metrics.Metrics
}

// Orchestrator drives scans. It is safe to run several scans concurrently;
// the only state they share is the limiter.
type Orchestrator struct {
	cheap    detector.Detector
	paid     detector.Detector
	limiter  Admitter
	gate     Gate
	store    Store
	notifier Notifier
	policy   Policy
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates an Orchestrator. Cheap, Gate and Store are required. A nil
// Paid detector behaves like regex_only mode.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Cheap == nil {
		return nil, fmt.Errorf("cheap detector is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("cost gate is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	o := &Orchestrator{
		cheap:    deps.Cheap,
		paid:     deps.Paid,
		limiter:  deps.Limiter,
		gate:     deps.Gate,
		store:    deps.Store,
		notifier: deps.Notifier,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
	if o.policy == nil {
		o.policy = classify.ShouldAnalyze
	}
	return o, nil
}

// fileFindings holds the raw findings of one file until the merge.
type fileFindings struct {
	regex []models.Violation
	llm   []models.Violation
}

// run is the mutable state of one scan.
type run struct {
	src      Source
	opts     Options
	acc      *pricing.Accumulator
	result   *Result
	findings []fileFindings
	total    int
	prompted bool
}

// Run scans the files of src. The returned Result is always non-nil. The
// error is non-nil only when the scan ends Failed.
func (o *Orchestrator) Run(ctx context.Context, src Source, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Pricing == (pricing.Table{}) {
		opts.Pricing = pricing.DefaultTable
	}

	r := &run{
		src:  src,
		opts: opts,
		acc:  pricing.NewAccumulator(opts.ScanID, opts.Pricing),
		result: &Result{
			Scan: models.Scan{
				StartedAt:   o.now(),
				ID:          opts.ScanID,
				Mode:        opts.Mode,
				Status:      models.ScanRunning,
				ProjectPath: opts.ProjectPath,
				ProjectID:   opts.ProjectID,
				CostLimit:   opts.CostLimit,
			},
		},
	}
	o.metrics.ScanStarted()

	files, err := src.Files(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.result.Scan.AbortReason = models.AbortCancelled
			return o.finish(ctx, r)
		}
		return o.fail(r, fmt.Errorf("failed to enumerate files: %w", err))
	}

	r.total = len(files)
	r.result.Scan.FilesTotal = r.total
	logger.Info("Scan started", "scan_id", opts.ScanID, "files", r.total, "mode", opts.Mode, "cost_limit", opts.CostLimit)
	o.notify(Event{Type: EventStarted, ScanID: opts.ScanID, FilesTotal: r.total, CostLimit: opts.CostLimit})

	for i, path := range files {
		if ctx.Err() != nil {
			r.result.Scan.AbortReason = models.AbortCancelled
			break
		}

		o.scanFile(ctx, r, path)

		done := i + 1
		r.result.Scan.FilesScanned = done
		o.metrics.FileScanned()
		o.notify(Event{
			Type:       EventProgress,
			ScanID:     opts.ScanID,
			File:       path,
			FilesDone:  done,
			FilesTotal: r.total,
			Violations: r.findingCount(),
			Cost:       r.acc.TotalCost(),
			CostLimit:  opts.CostLimit,
		})

		if done%opts.BatchSize == 0 || done == r.total {
			reason := o.checkpoint(ctx, r)
			if reason == models.AbortCostLimit && done == r.total {
				// Nothing was left to skip, so coverage is complete.
				reason = models.AbortNone
			}
			if reason != models.AbortNone {
				r.result.Scan.AbortReason = reason
				break
			}
		}
	}

	return o.finish(ctx, r)
}

// scanFile runs the detectors on one file. Failures are recorded on the
// result and never stop the scan.
func (o *Orchestrator) scanFile(ctx context.Context, r *run, path string) {
	var ff fileFindings
	defer func() { r.findings = append(r.findings, ff) }()

	content, err := r.src.Read(path)
	if err != nil {
		o.fileError(r, path, "read", err)
		return
	}
	file := detector.File{ScanID: r.opts.ScanID, Path: path, Content: content}

	det, err := o.cheap.Detect(ctx, file)
	if err != nil {
		o.fileError(r, path, "regex", err)
	} else if det != nil {
		ff.regex = det.Violations
	}

	if o.paid == nil || !o.policy(r.opts.Mode, path, content) {
		return
	}

	if o.limiter != nil {
		if err := o.limiter.CheckAndConsume(); err != nil {
			r.result.RateLimited++
			window := "unknown"
			if le := ratelimit.AsLimitError(err); le != nil {
				window = string(le.Window)
			}
			o.metrics.RateLimited(window)
			logger.Warn("Skipping paid analysis", "scan_id", r.opts.ScanID, "file", path, "error", err)
			return
		}
	}

	r.result.PaidCalls++
	det, err = o.paid.Detect(ctx, file)
	if det != nil && det.Usage != nil {
		before := r.acc.TotalCost()
		r.acc.Add(*det.Usage)
		o.metrics.PaidCall(r.acc.TotalCost() - before)
	} else {
		o.metrics.PaidCall(0)
	}
	if err != nil {
		if le := ratelimit.AsLimitError(err); le != nil {
			r.result.RateLimited++
			o.metrics.RateLimited(string(le.Window))
		}
		o.fileError(r, path, "llm", err)
		return
	}
	if det != nil {
		ff.llm = det.Violations
	}
}

func (o *Orchestrator) fileError(r *run, path, stage string, err error) {
	r.result.FileErrors = append(r.result.FileErrors, FileError{Path: path, Stage: stage, Err: err})
	o.metrics.DetectorError(stage)
	logger.Warn("Skipping file", "scan_id", r.opts.ScanID, "file", path, "stage", stage, "error", err)
}

// checkpoint runs at every batch boundary. It records running spend and,
// the first time spend exceeds the budget, asks for a decision.
func (o *Orchestrator) checkpoint(ctx context.Context, r *run) models.AbortReason {
	rec := r.acc.Record()
	rec.UpdatedAt = o.now()
	if err := o.store.UpsertScanCost(ctx, rec); err != nil {
		logger.Warn("Failed to record running cost", "scan_id", r.opts.ScanID, "error", err)
	}

	if r.opts.CostLimit <= 0 || r.prompted || rec.TotalCost <= r.opts.CostLimit {
		return models.AbortNone
	}

	r.prompted = true
	r.result.Prompted = true
	return o.awaitDecision(ctx, r, rec.TotalCost)
}

func (o *Orchestrator) awaitDecision(ctx context.Context, r *run, cost float64) models.AbortReason {
	scanID := r.opts.ScanID

	ch := o.gate.Open(scanID)
	defer o.gate.Release(scanID)

	logger.Warn("Cost limit reached, awaiting decision",
		"scan_id", scanID, "cost", cost, "cost_limit", r.opts.CostLimit)
	o.notify(Event{
		Type:       EventCostLimitReached,
		ScanID:     scanID,
		FilesDone:  r.result.Scan.FilesScanned,
		FilesTotal: r.total,
		Cost:       cost,
		CostLimit:  r.opts.CostLimit,
	})

	outcome := costgate.Await(ctx, ch, r.opts.PromptTimeout)
	o.metrics.CostPrompt(outcome.String())

	var reason models.AbortReason
	decision := outcome.String()

	switch outcome {
	case costgate.OutcomeContinue:
	case costgate.OutcomeStop:
		reason = models.AbortCostLimit
	case costgate.OutcomeUndecided:
		logger.Warn("Cost limit prompt unanswered",
			"scan_id", scanID, "continue", r.opts.ContinueOnTimeout)
		if r.opts.ContinueOnTimeout {
			decision = costgate.OutcomeContinue.String()
		} else {
			decision = costgate.OutcomeStop.String()
			reason = models.AbortCostLimit
		}
	case costgate.OutcomeCancelled:
		reason = models.AbortCancelled
	}

	logger.Info("Cost limit decision", "scan_id", scanID, "decision", decision)
	o.notify(Event{
		Type:      EventCostLimitResolved,
		ScanID:    scanID,
		Decision:  decision,
		Cost:      cost,
		CostLimit: r.opts.CostLimit,
	})

	return reason
}

// finish merges findings and persists the outcome. Persistence uses a
// context that survives cancellation so an aborted scan still records what
// it collected.
func (o *Orchestrator) finish(ctx context.Context, r *run) (*Result, error) {
	res := r.result
	res.Violations = r.merged()
	res.Cost = r.acc.Record()
	res.Cost.UpdatedAt = o.now()

	if res.Scan.AbortReason == models.AbortNone {
		res.Scan.Status = models.ScanCompleted
	} else {
		res.Scan.Status = models.ScanAborted
	}
	if res.Scan.AbortReason == models.AbortCancelled {
		o.gate.Release(r.opts.ScanID)
	}
	res.Scan.FinishedAt = o.now()

	persistCtx := ctx
	if ctx.Err() != nil {
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := o.store.SaveScanResults(persistCtx, res.Scan, res.Violations, res.Cost); err != nil {
		return o.fail(r, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	logger.Info("Scan finished",
		"scan_id", res.Scan.ID,
		"status", res.Scan.Status,
		"abort_reason", res.Scan.AbortReason,
		"files", res.Scan.FilesScanned,
		"violations", len(res.Violations),
		"cost", res.Cost.TotalCost,
	)
	o.metrics.ScanFinished(res.Scan.Status, res.Violations)
	o.notifyFinished(res)

	return res, nil
}

// fail ends the scan in the Failed state, keeping whatever was collected.
func (o *Orchestrator) fail(r *run, err error) (*Result, error) {
	res := r.result
	if res.Violations == nil {
		res.Violations = r.merged()
	}
	res.Cost = r.acc.Record()
	res.Scan.Status = models.ScanFailed
	res.Scan.Error = err.Error()
	res.Scan.FinishedAt = o.now()

	logger.Error("Scan failed", "scan_id", res.Scan.ID, "error", err)
	o.metrics.ScanFinished(models.ScanFailed, nil)
	o.notifyFinished(res)

	return res, err
}

func (o *Orchestrator) notifyFinished(res *Result) {
	o.notify(Event{
		Type:        EventFinished,
		ScanID:      res.Scan.ID,
		Status:      res.Scan.Status,
		AbortReason: res.Scan.AbortReason,
		FilesDone:   res.Scan.FilesScanned,
		FilesTotal:  res.Scan.FilesTotal,
		Violations:  len(res.Violations),
		Cost:        res.Cost.TotalCost,
		CostLimit:   res.Scan.CostLimit,
	})
}

func (o *Orchestrator) notify(e Event) {
	if o.notifier != nil {
		o.notifier.Notify(e)
	}
}

// merged reconciles the findings of every processed file in enumeration
// order. Findings never merge across files, so merging file by file equals
// merging the whole set.
func (r *run) merged() []models.Violation {
	out := make([]models.Violation, 0, r.findingCount())
	for _, ff := range r.findings {
		out = append(out, merge.Merge(ff.regex, ff.llm)...)
	}
	for i := range out {
		out[i].ScanID = r.opts.ScanID
		if out[i].Status == "" {
			out[i].Status = models.StatusPending
		}
	}
	return out
}

func (r *run) findingCount() int {
	n := 0
	for _, ff := range r.findings {
		n += len(ff.regex) + len(ff.llm)
	}
	return n
}

// IsPersistenceError reports whether err came from storing final results.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}
