package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/j-veylop/complyscan/internal/models"
)

const systemPrompt = `You are a SOC 2 compliance reviewer. Inspect the source file for violations of these controls:
- CC6.1 Logical access: hardcoded credentials, missing authentication or authorization checks, weak session handling.
- CC6.6 External threats: injection, unsafe deserialization, weak cryptography, missing input validation.
- CC6.7 Data in transit: plaintext protocols, disabled certificate verification, weak TLS settings.
- CC7.2 Monitoring: sensitive data in logs, swallowed errors, missing audit logging of security events.

Reply with a single JSON object and nothing else:
{"findings":[{"control_id":"CC6.1","severity":"low|medium|high|critical","line":1,"description":"...","reasoning":"...","confidence":0,"snippet":"..."}]}
Line numbers refer to the numbered listing. Confidence is an integer from 0 to 100. Reply {"findings":[]} when the file is clean.`

// userPrompt renders the file with 1-based line numbers.
func userPrompt(filePath, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n\n", filePath)
	for i, line := range strings.Split(code, "\n") {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(": ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	return b.String()
}

type finding struct {
	ControlID   string `json:"control_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
	Snippet     string `json:"snippet"`
	Line        int    `json:"line"`
	Confidence  int    `json:"confidence"`
}

type findingsReply struct {
	Findings []finding `json:"findings"`
}

// parseFindings extracts the JSON object from the model reply. Models
// sometimes wrap it in prose or a fenced block.
func parseFindings(text string) ([]finding, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("model reply contains no JSON object")
	}

	var reply findingsReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	return reply.Findings, nil
}

// toViolations converts model findings, dropping those that point outside
// the file or name no control.
func toViolations(findings []finding, code, filePath string, detectedAt time.Time) []models.Violation {
	lines := strings.Split(code, "\n")

	out := make([]models.Violation, 0, len(findings))
	for _, f := range findings {
		control := strings.TrimSpace(f.ControlID)
		if control == "" || f.Line < 1 || f.Line > len(lines) {
			continue
		}

		sev, err := models.ParseSeverity(f.Severity)
		if err != nil {
			sev = models.SeverityMedium
		}

		snippet := strings.TrimSpace(f.Snippet)
		if snippet == "" {
			snippet = strings.TrimSpace(strings.TrimSuffix(lines[f.Line-1], "\r"))
		}

		out = append(out, models.Violation{
			DetectedAt:   detectedAt,
			Confidence:   models.ClampConfidence(f.Confidence),
			ControlID:    control,
			Description:  f.Description,
			FilePath:     filePath,
			CodeSnippet:  snippet,
			Method:       models.DetectionLLM,
			LLMReasoning: f.Reasoning,
			Status:       models.StatusPending,
			Line:         f.Line,
			Severity:     sev,
		})
	}
	return out
}
