// Package models defines data structures and domain types.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks how serious a finding is. Values are ordered so that
// comparisons with < and > follow low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a severity name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity: %q", s)
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DetectionMethod records which detector produced a finding.
type DetectionMethod string

const (
	DetectionRegex  DetectionMethod = "regex"
	DetectionLLM    DetectionMethod = "llm"
	DetectionHybrid DetectionMethod = "hybrid"
)

// ViolationStatus is the lifecycle state of a persisted finding.
type ViolationStatus string

const (
	StatusPending   ViolationStatus = "pending"
	StatusDismissed ViolationStatus = "dismissed"
	StatusFixed     ViolationStatus = "fixed"
)

// Violation is a single compliance finding at a location in a source file.
type Violation struct {
	DetectedAt     time.Time       `json:"detectedAt"`
	Confidence     *int            `json:"confidence,omitempty"`
	ScanID         string          `json:"scanId"`
	ControlID      string          `json:"controlId"`
	Description    string          `json:"description"`
	FilePath       string          `json:"filePath"`
	CodeSnippet    string          `json:"codeSnippet"`
	Method         DetectionMethod `json:"detectionMethod"`
	LLMReasoning   string          `json:"llmReasoning,omitempty"`
	RegexReasoning string          `json:"regexReasoning,omitempty"`
	Status         ViolationStatus `json:"status"`
	ID             int64           `json:"id"`
	Line           int             `json:"line"`
	Severity       Severity        `json:"severity"`
}

// Validate checks the invariants a finding must satisfy before it is stored.
func (v *Violation) Validate() error {
	if v.ControlID == "" {
		return fmt.Errorf("violation has no control id")
	}
	if v.Line < 1 {
		return fmt.Errorf("violation line must be >= 1, got %d", v.Line)
	}
	if v.Confidence != nil {
		if *v.Confidence < 0 || *v.Confidence > 100 {
			return fmt.Errorf("confidence must be within [0,100], got %d", *v.Confidence)
		}
		if v.Method == DetectionRegex {
			return fmt.Errorf("regex findings carry no confidence score")
		}
	}
	if v.Method == DetectionHybrid && (v.LLMReasoning == "" || v.RegexReasoning == "") {
		return fmt.Errorf("hybrid finding requires both reasoning fields")
	}
	return nil
}

// ClampConfidence returns a pointer to c limited to [0,100].
func ClampConfidence(c int) *int {
	c = max(0, min(100, c))
	return &c
}
