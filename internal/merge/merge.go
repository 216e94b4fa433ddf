// Package merge reconciles regex and LLM findings for the same scan into one
// deduplicated set.
package merge

import (
	"cmp"
	"slices"

	"github.com/j-veylop/complyscan/internal/models"
)

// LineTolerance is the largest line distance at which a regex finding and an
// LLM finding are considered the same issue.
const LineTolerance = 3

type candidate struct {
	distance int
	regex    int
	llm      int
}

// Merge pairs regex and LLM findings that share a file and control and lie
// within LineTolerance lines of each other. Each finding joins at most one
// pair, and closer pairs are chosen first. Paired findings become a single
// hybrid finding; everything else is returned unchanged.
//
// The result is ordered by the first appearance of each file across regex
// then llm, then by line.
func Merge(regex, llm []models.Violation) []models.Violation {
	var candidates []candidate
	for i := range regex {
		for j := range llm {
			if !sameGroup(&regex[i], &llm[j]) {
				continue
			}
			d := abs(regex[i].Line - llm[j].Line)
			if d <= LineTolerance {
				candidates = append(candidates, candidate{distance: d, regex: i, llm: j})
			}
		}
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.distance, b.distance),
			cmp.Compare(a.regex, b.regex),
			cmp.Compare(a.llm, b.llm),
		)
	})

	regexUsed := make([]bool, len(regex))
	llmUsed := make([]bool, len(llm))
	out := make([]models.Violation, 0, len(regex)+len(llm))

	for _, c := range candidates {
		if regexUsed[c.regex] || llmUsed[c.llm] {
			continue
		}
		regexUsed[c.regex] = true
		llmUsed[c.llm] = true
		out = append(out, hybrid(regex[c.regex], llm[c.llm]))
	}

	for i, v := range regex {
		if !regexUsed[i] {
			out = append(out, v)
		}
	}
	for j, v := range llm {
		if !llmUsed[j] {
			out = append(out, v)
		}
	}

	rank := fileRanks(regex, llm)
	slices.SortStableFunc(out, func(a, b models.Violation) int {
		return cmp.Or(
			cmp.Compare(rank[a.FilePath], rank[b.FilePath]),
			cmp.Compare(a.Line, b.Line),
		)
	})

	return out
}

func sameGroup(a, b *models.Violation) bool {
	return a.FilePath == b.FilePath && a.ControlID == b.ControlID
}

// hybrid combines a paired regex and LLM finding. Location comes from the
// regex side, judgement (confidence, description) from the LLM side.
func hybrid(r, l models.Violation) models.Violation {
	v := r
	v.ID = 0
	v.Method = models.DetectionHybrid
	v.Severity = models.MaxSeverity(r.Severity, l.Severity)
	v.Confidence = l.Confidence

	if l.Description != "" {
		v.Description = l.Description
	}
	if v.CodeSnippet == "" {
		v.CodeSnippet = l.CodeSnippet
	}
	if v.ScanID == "" {
		v.ScanID = l.ScanID
	}

	v.RegexReasoning = firstNonEmpty(r.RegexReasoning, r.Description, "Matched pattern for control "+r.ControlID)
	v.LLMReasoning = firstNonEmpty(l.LLMReasoning, l.Description, "Flagged by model review for control "+l.ControlID)

	if v.Status == "" {
		v.Status = models.StatusPending
	}
	return v
}

func fileRanks(regex, llm []models.Violation) map[string]int {
	rank := make(map[string]int)
	for _, list := range [][]models.Violation{regex, llm} {
		for _, v := range list {
			if _, ok := rank[v.FilePath]; !ok {
				rank[v.FilePath] = len(rank)
			}
		}
	}
	return rank
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
