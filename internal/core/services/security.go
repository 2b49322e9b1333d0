package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Flag reasons reported by the content validator.
const (
	FlagInstructionOverride = "instruction_override"
	FlagShellInjection      = "shell_injection"
	FlagImperativeDensity   = "imperative_density"
)

var overridePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+|the\s+|your\s+)?(previous|prior|above|earlier|preceding|system)\s+(instructions?|prompts?|rules|directions|guidelines)`),
	regexp.MustCompile(`(?i)\bdisregard\s+(all\s+|any\s+)?(instructions?|rules)\b`),
	regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)\bfrom\s+now\s+on,?\s+you\s+are\b`),
	regexp.MustCompile(`(?i)\boverride\s+(your|all|the)\s+(instructions|rules|guidelines)\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(?:[\w'-]+[\s,;:]+){0,3}(assistant|ai|model|bot|chatbot|persona|character|agent)\b`),
	regexp.MustCompile(`(?i)\b(act|behave|pretend)\s+as\s+(if\s+you\s+were\s+)?(a|an)\s+(different|new|unrestricted|unfiltered)\b`),
	regexp.MustCompile(`(?i)\b(reveal|print|show|output)\s+(your|the)\s+(system\s+prompt|hidden\s+instructions|secrets?)\b`),
}

// Shell patterns only fire when a command follows an operator directly, so
// prose with semicolons or inline code stays clean.
var shellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(;|&&|\|\||\$\(|\|)\s*(sudo\s+)?(rm|curl|wget|sudo|chmod|eval|sh|bash|zsh)\b`),
	regexp.MustCompile(`(?i)\brm\s+-(rf|fr|r)\b`),
	regexp.MustCompile(`>\s*/(etc|bin|boot|usr)/`),
}

var wordPattern = regexp.MustCompile(`[A-Za-z']+`)

var imperativeWords = map[string]bool{
	"must":        true,
	"always":      true,
	"never":       true,
	"required":    true,
	"mandatory":   true,
	"shall":       true,
	"obey":        true,
	"comply":      true,
	"immediately": true,
}

// SecurityReport explains a validation verdict.
type SecurityReport struct {
	Safe              bool
	Reasons           []string
	ImperativeDensity float64
}

// Warning returns a one-line description of the flags, or "" when safe.
func (r SecurityReport) Warning() string {
	if r.Safe {
		return ""
	}
	return "suspicious content: " + strings.Join(r.Reasons, ", ")
}

// ContentValidator flags retrieved chunks that look like injected instructions.
// Flagged chunks are still passed on, tagged, so synthesis can refuse to follow them.
type ContentValidator struct {
	settings domain.SecuritySettings
	metrics  driven.MetricsRecorder
}

// NewContentValidator creates a validator.
func NewContentValidator(settings domain.SecuritySettings) *ContentValidator {
	return &ContentValidator{settings: settings}
}

// SetMetrics sets the recorder that counts flagged chunks.
func (v *ContentValidator) SetMetrics(m driven.MetricsRecorder) {
	v.metrics = m
}

// Validate returns whether content is safe and a warning when it is not.
func (v *ContentValidator) Validate(content string) (bool, string) {
	r := v.Inspect(content)
	return r.Safe, r.Warning()
}

// Inspect runs every heuristic against content.
func (v *ContentValidator) Inspect(content string) SecurityReport {
	report := SecurityReport{Safe: true}

	for _, p := range overridePatterns {
		if p.MatchString(content) {
			report.Reasons = append(report.Reasons, FlagInstructionOverride)
			break
		}
	}

	for _, p := range shellPatterns {
		if p.MatchString(content) {
			report.Reasons = append(report.Reasons, FlagShellInjection)
			break
		}
	}

	words := wordPattern.FindAllString(content, -1)
	if len(words) > 0 {
		imperative := 0
		for _, w := range words {
			if imperativeWords[strings.ToLower(w)] {
				imperative++
			}
		}
		report.ImperativeDensity = float64(imperative) / float64(len(words))
	}
	if len(words) > v.settings.MinWordsForDensity && report.ImperativeDensity > v.settings.ImperativeThreshold {
		report.Reasons = append(report.Reasons, FlagImperativeDensity)
	}

	report.Safe = len(report.Reasons) == 0
	return report
}

// Annotate validates each chunk and returns them tagged, in order.
func (v *ContentValidator) Annotate(chunks []domain.Chunk) []domain.CandidateChunk {
	out := make([]domain.CandidateChunk, 0, len(chunks))
	for _, c := range chunks {
		r := v.Inspect(c.Content)
		cand := domain.CandidateChunk{Chunk: c, IsSafe: r.Safe}
		if !r.Safe {
			cand.Warning = fmt.Sprintf("%s (source %s)", r.Warning(), c.Source)
			if v.metrics != nil {
				for _, reason := range r.Reasons {
					v.metrics.IncSecurityFlag(reason)
				}
			}
		}
		out = append(out, cand)
	}
	return out
}
