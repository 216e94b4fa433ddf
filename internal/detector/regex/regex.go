// Package regex is the cheap, always-on detector. It matches embedded
// line-oriented rules and never spends tokens.
package regex

import (
	"context"
	_ "embed"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/j-veylop/complyscan/internal/detector"
	"github.com/j-veylop/complyscan/internal/models"
)

//go:embed rules.yaml
var defaultRules []byte

// maxSnippetLen caps the stored code snippet.
const maxSnippetLen = 240

// RuleSpec is a rule as written in a rules file.
type RuleSpec struct {
	ID          string   `yaml:"id"`
	Control     string   `yaml:"control"`
	Severity    string   `yaml:"severity"`
	Description string   `yaml:"description"`
	Reasoning   string   `yaml:"reasoning"`
	Pattern     string   `yaml:"pattern"`
	Exclude     string   `yaml:"exclude"`
	Extensions  []string `yaml:"extensions"`
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// Rule is a compiled RuleSpec.
type Rule struct {
	pattern    *regexp.Regexp
	exclude    *regexp.Regexp
	extensions map[string]bool
	ID         string
	Control    string
	Desc       string
	Reasoning  string
	Severity   models.Severity
}

func (r *Rule) appliesTo(path string) bool {
	if len(r.extensions) == 0 {
		return true
	}
	return r.extensions[strings.ToLower(filepath.Ext(path))]
}

func (r *Rule) matches(line string) bool {
	if !r.pattern.MatchString(line) {
		return false
	}
	return r.exclude == nil || !r.exclude.MatchString(line)
}

// Detector applies a fixed rule set to source files.
type Detector struct {
	now   func() time.Time
	rules []*Rule
}

// New creates a Detector with the built-in rule set.
func New() (*Detector, error) {
	return NewFromYAML(defaultRules)
}

// NewFromYAML creates a Detector from a rules document.
func NewFromYAML(data []byte) (*Detector, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules document defines no rules")
	}

	d := &Detector{now: time.Now}
	seen := make(map[string]bool, len(rf.Rules))
	for _, rs := range rf.Rules {
		if seen[rs.ID] {
			return nil, fmt.Errorf("duplicate rule id: %s", rs.ID)
		}
		seen[rs.ID] = true

		rule, err := compile(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", rs.ID, err)
		}
		d.rules = append(d.rules, rule)
	}
	return d, nil
}

func compile(rs RuleSpec) (*Rule, error) {
	if rs.ID == "" || rs.Control == "" || rs.Pattern == "" {
		return nil, fmt.Errorf("id, control and pattern are required")
	}

	sev, err := models.ParseSeverity(rs.Severity)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(rs.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	rule := &Rule{
		pattern:   pattern,
		ID:        rs.ID,
		Control:   rs.Control,
		Desc:      rs.Description,
		Reasoning: rs.Reasoning,
		Severity:  sev,
	}

	if rs.Exclude != "" {
		rule.exclude, err = regexp.Compile(rs.Exclude)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern: %w", err)
		}
	}

	if len(rs.Extensions) > 0 {
		rule.extensions = make(map[string]bool, len(rs.Extensions))
		for _, ext := range rs.Extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			rule.extensions[ext] = true
		}
	}

	return rule, nil
}

// Rules returns the compiled rules in file order.
func (d *Detector) Rules() []*Rule {
	return d.rules
}

// Analyze scans code line by line. Each rule reports at most one finding per
// line.
func (d *Detector) Analyze(code, filePath, scanID string) ([]models.Violation, error) {
	var applicable []*Rule
	for _, r := range d.rules {
		if r.appliesTo(filePath) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	detectedAt := d.now()
	var out []models.Violation

	for i, line := range strings.Split(code, "\n") {
		line = strings.TrimSuffix(line, "\r")
		for _, r := range applicable {
			if !r.matches(line) {
				continue
			}
			out = append(out, models.Violation{
				DetectedAt:     detectedAt,
				ScanID:         scanID,
				ControlID:      r.Control,
				Description:    r.Desc,
				FilePath:       filePath,
				CodeSnippet:    snippet(line),
				Method:         models.DetectionRegex,
				RegexReasoning: r.Reasoning,
				Status:         models.StatusPending,
				Line:           i + 1,
				Severity:       r.Severity,
			})
		}
	}

	return out, nil
}

// Detect implements detector.Detector.
func (d *Detector) Detect(_ context.Context, file detector.File) (*detector.Detection, error) {
	violations, err := d.Analyze(file.Content, file.Path, file.ScanID)
	if err != nil {
		return nil, err
	}
	return &detector.Detection{Violations: violations}, nil
}

func snippet(line string) string {
	s := strings.TrimSpace(line)
	if utf8.RuneCountInString(s) > maxSnippetLen {
		s = string([]rune(s)[:maxSnippetLen]) + "..."
	}
	return s
}
