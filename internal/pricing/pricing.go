// Package pricing turns token counts into spend.
package pricing

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/j-veylop/complyscan/internal/models"
)

var million = decimal.NewFromInt(1_000_000)

// Table holds USD prices per million tokens of each kind.
type Table struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheReadPerMillion  float64
	CacheWritePerMillion float64
}

// DefaultTable is the price list of the default analysis model.
var DefaultTable = Table{
	InputPerMillion:      3.00,
	OutputPerMillion:     15.00,
	CacheReadPerMillion:  0.30,
	CacheWritePerMillion: 3.75,
}

// CalculateCost returns the cost of the given token counts. The arithmetic
// is done in decimal so the result only carries float rounding once.
func (t Table) CalculateCost(input, output, cacheRead, cacheWrite int64) float64 {
	total := part(input, t.InputPerMillion).
		Add(part(output, t.OutputPerMillion)).
		Add(part(cacheRead, t.CacheReadPerMillion)).
		Add(part(cacheWrite, t.CacheWritePerMillion))
	return total.InexactFloat64()
}

// Cost returns the cost of a TokenUsage.
func (t Table) Cost(u models.TokenUsage) float64 {
	return t.CalculateCost(u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens)
}

func part(tokens int64, perMillion float64) decimal.Decimal {
	return decimal.NewFromInt(tokens).Div(million).Mul(decimal.NewFromFloat(perMillion))
}

// CalculateCost prices token counts with DefaultTable.
func CalculateCost(input, output, cacheRead, cacheWrite int64) float64 {
	return DefaultTable.CalculateCost(input, output, cacheRead, cacheWrite)
}

// CostPerFile returns totalCost spread over files, or 0 when no files were analyzed.
func CostPerFile(totalCost float64, files int) float64 {
	if files <= 0 {
		return 0
	}
	return totalCost / float64(files)
}

// AvgTokensPerFile returns the mean token count per analyzed file, or 0.
func AvgTokensPerFile(tokens int64, files int) float64 {
	if files <= 0 {
		return 0
	}
	return float64(tokens) / float64(files)
}

// Accumulator keeps the running token totals of one scan.
type Accumulator struct {
	mu     sync.Mutex
	table  Table
	scanID string
	usage  models.TokenUsage
	files  int
}

// NewAccumulator creates an empty accumulator for scanID.
func NewAccumulator(scanID string, table Table) *Accumulator {
	return &Accumulator{scanID: scanID, table: table}
}

// Add records one paid-detector call and its usage.
func (a *Accumulator) Add(u models.TokenUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage = a.usage.Add(u)
	a.files++
}

// TotalCost returns the cost of everything recorded so far.
func (a *Accumulator) TotalCost() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table.Cost(a.usage)
}

// Record returns a snapshot of the accumulated spend.
func (a *Accumulator) Record() models.ScanCostRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.ScanCostRecord{
		ScanID:        a.scanID,
		FilesAnalyzed: a.files,
		Usage:         a.usage,
		TotalCost:     a.table.Cost(a.usage),
		UpdatedAt:     time.Now(),
	}
}
