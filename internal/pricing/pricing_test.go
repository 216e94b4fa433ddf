package pricing

import (
	"math"
	"sync"
	"testing"

	"github.com/j-veylop/complyscan/internal/models"
)

const tolerance = 0.001

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestCalculateCost_Zero(t *testing.T) {
	if got := CalculateCost(0, 0, 0, 0); got != 0 {
		t.Errorf("CalculateCost(0,0,0,0) = %v, want exactly 0", got)
	}
}

func TestCalculateCost_Formula(t *testing.T) {
	tests := []struct {
		name                                 string
		input, output, cacheRead, cacheWrite int64
		want                                 float64
	}{
		{"input only", 1_000_000, 0, 0, 0, 3.00},
		{"output only", 0, 1_000_000, 0, 0, 15.00},
		{"cache read only", 0, 0, 1_000_000, 0, 0.30},
		{"cache write only", 0, 0, 0, 1_000_000, 3.75},
		{"typical file", 12_000, 800, 50_000, 2_000, 0.036 + 0.012 + 0.015 + 0.0075},
		{"large", 2_500_000, 400_000, 0, 0, 7.5 + 6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.input, tt.output, tt.cacheRead, tt.cacheWrite)
			if !almostEqual(got, tt.want) {
				t.Errorf("CalculateCost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateCost_Additive(t *testing.T) {
	counts := []int64{1, 999, 33_333, 250_000, 1_750_000}
	for _, n := range counts {
		single := CalculateCost(n, 0, 0, 0)
		double := CalculateCost(2*n, 0, 0, 0)
		if !almostEqual(double, 2*single) {
			t.Errorf("doubling input %d: %v != 2*%v", n, double, single)
		}

		combined := CalculateCost(n, n, n, n)
		sum := CalculateCost(n, 0, 0, 0) + CalculateCost(0, n, 0, 0) +
			CalculateCost(0, 0, n, 0) + CalculateCost(0, 0, 0, n)
		if !almostEqual(combined, sum) {
			t.Errorf("contributions for %d not additive: %v != %v", n, combined, sum)
		}
	}
}

func TestCostPerFile(t *testing.T) {
	if got := CostPerFile(1.5, 0); got != 0 {
		t.Errorf("CostPerFile with 0 files = %v, want 0", got)
	}
	if got := CostPerFile(1.5, 3); got != 0.5 {
		t.Errorf("CostPerFile = %v, want 0.5", got)
	}
	if got := AvgTokensPerFile(900, 0); got != 0 {
		t.Errorf("AvgTokensPerFile with 0 files = %v, want 0", got)
	}
	if got := AvgTokensPerFile(900, 4); got != 225 {
		t.Errorf("AvgTokensPerFile = %v, want 225", got)
	}
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator("scan-1", Table{InputPerMillion: 1})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Add(models.TokenUsage{InputTokens: 10_000})
		}()
	}
	wg.Wait()

	rec := acc.Record()
	if rec.ScanID != "scan-1" {
		t.Errorf("ScanID = %s, want scan-1", rec.ScanID)
	}
	if rec.FilesAnalyzed != 10 {
		t.Errorf("FilesAnalyzed = %d, want 10", rec.FilesAnalyzed)
	}
	if rec.Usage.InputTokens != 100_000 {
		t.Errorf("InputTokens = %d, want 100000", rec.Usage.InputTokens)
	}
	if !almostEqual(rec.TotalCost, 0.10) {
		t.Errorf("TotalCost = %v, want 0.10", rec.TotalCost)
	}
	if rec.TotalCost != acc.TotalCost() {
		t.Errorf("Record and TotalCost disagree: %v vs %v", rec.TotalCost, acc.TotalCost())
	}
}
