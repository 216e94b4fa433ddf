package models

import (
	"fmt"
	"time"
)

// ScanMode selects when the paid detector runs.
type ScanMode string

const (
	// ModeRegexOnly never calls the paid detector.
	ModeRegexOnly ScanMode = "regex_only"
	// ModeSmart calls the paid detector only on security-relevant files.
	ModeSmart ScanMode = "smart"
	// ModeAnalyzeAll calls the paid detector on every supported file.
	ModeAnalyzeAll ScanMode = "analyze_all"
)

// ParseScanMode validates a scan mode name.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case ModeRegexOnly, ModeSmart, ModeAnalyzeAll:
		return ScanMode(s), nil
	default:
		return "", fmt.Errorf("unknown scan mode: %q", s)
	}
}

// ScanStatus is the terminal or running state of a scan.
type ScanStatus string

const (
	ScanIdle      ScanStatus = "idle"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanAborted   ScanStatus = "aborted"
	ScanFailed    ScanStatus = "failed"
)

// AbortReason explains why a scan stopped before covering every file.
type AbortReason string

const (
	AbortNone      AbortReason = ""
	AbortCostLimit AbortReason = "cost_limit"
	AbortCancelled AbortReason = "cancelled"
)

// Project is a source tree that can be scanned.
type Project struct {
	CreatedAt time.Time
	Name      string
	Path      string
	ID        int64
}

// Scan is one run of the pipeline over a project.
type Scan struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	ID           string
	Mode         ScanMode
	Status       ScanStatus
	AbortReason  AbortReason
	Error        string
	ProjectPath  string
	ProjectID    int64
	CostLimit    float64
	FilesTotal   int
	FilesScanned int
}
