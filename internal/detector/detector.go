// Package detector defines the capability shared by the cheap and paid
// compliance detectors.
package detector

import (
	"context"

	"github.com/j-veylop/complyscan/internal/models"
)

// File is one source file handed to a detector during a scan.
type File struct {
	ScanID  string
	Path    string
	Content string
}

// Detection is the uniform result of running a detector on a file. Usage is
// nil for detectors that do not spend tokens.
type Detection struct {
	Usage      *models.TokenUsage
	Violations []models.Violation
}

// Detector analyzes a single file for compliance violations.
type Detector interface {
	Detect(ctx context.Context, file File) (*Detection, error)
}

// Func adapts an ordinary function to the Detector interface.
type Func func(ctx context.Context, file File) (*Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, file File) (*Detection, error) {
	return f(ctx, file)
}
