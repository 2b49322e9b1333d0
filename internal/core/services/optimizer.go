package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

const componentOptimizer = "optimizer"

// maxContextTurnLength truncates each history turn passed to the optimizer.
const maxContextTurnLength = 200

// defaultQueryOptimizePrompt is the fallback prompt when no PromptStore is configured.
const defaultQueryOptimizePrompt = `You rewrite questions so they retrieve well from a personal knowledge store.

Recent conversation:
%s

Question: %s

Respond with a single JSON object and nothing else:
{"optimized_query": "<standalone search query>",
 "intent": "lookup|explanation|comparison|procedure|summary",
 "strategy": "single|expanded|broad",
 "confidence": <0.0 to 1.0>,
 "variants": ["<alternative phrasing>", "..."]}

Use "single" for precise questions, "expanded" when synonyms would help and "broad" for vague or multi-part questions.`

var errNoJSON = errors.New("model response contained no JSON object")

// QueryOptimizer rewrites queries and classifies intent and strategy.
// Without a language model every query passes through unchanged.
type QueryOptimizer struct {
	llm         driven.LLMService
	settings    domain.OptimizerSettings
	maxVariants int
	tracker     *ErrorTracker
	promptStore driven.PromptStore
}

// NewQueryOptimizer creates an optimizer. llm may be nil.
func NewQueryOptimizer(
	llm driven.LLMService,
	settings domain.OptimizerSettings,
	maxVariants int,
	tracker *ErrorTracker,
) *QueryOptimizer {
	return &QueryOptimizer{
		llm:         llm,
		settings:    settings,
		maxVariants: maxVariants,
		tracker:     tracker,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (o *QueryOptimizer) SetPromptStore(store driven.PromptStore) {
	o.promptStore = store
}

// Optimize returns the rewritten query. It never fails: model errors and
// unparseable output fall back to the original query with zero confidence.
func (o *QueryOptimizer) Optimize(ctx context.Context, query string, history []domain.ChatTurn) domain.QueryOptimization {
	query = strings.TrimSpace(query)
	fallback := domain.FallbackOptimization(query)

	if o.llm == nil || !o.settings.Enabled || query == "" {
		return fallback
	}

	return WithFallback(o.tracker, componentOptimizer, fallback, func() (domain.QueryOptimization, error) {
		return o.optimize(ctx, query, history)
	})
}

func (o *QueryOptimizer) optimize(ctx context.Context, query string, history []domain.ChatTurn) (domain.QueryOptimization, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.Timeout)
	defer cancel()

	prompt := fmt.Sprintf(o.loadPrompt(), formatHistory(history), query)
	raw, err := o.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   o.settings.MaxTokens,
		Temperature: o.settings.Temperature,
	})
	if err != nil {
		return domain.QueryOptimization{}, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}

	opt, err := parseOptimization(query, raw, o.maxVariants)
	if err != nil {
		return domain.QueryOptimization{}, err
	}
	logger.Debug("optimizer: %q -> %q (intent=%s strategy=%s confidence=%.2f)",
		query, opt.OptimizedQuery, opt.Intent, opt.Strategy, opt.Confidence)
	return opt, nil
}

func (o *QueryOptimizer) loadPrompt() string {
	if o.promptStore == nil {
		return defaultQueryOptimizePrompt
	}
	prompt, err := o.promptStore.Load(driven.PromptQueryOptimize)
	if err != nil {
		logger.Debug("optimizer: prompt store unavailable, using default: %v", err)
		return defaultQueryOptimizePrompt
	}
	return prompt
}

// parseOptimization reads the model's JSON answer, repairing what it can.
func parseOptimization(query, raw string, maxVariants int) (domain.QueryOptimization, error) {
	doc, ok := extractJSONObject(raw)
	if !ok {
		return domain.QueryOptimization{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, errNoJSON)
	}
	parsed := gjson.Parse(doc)

	optimized := strings.TrimSpace(parsed.Get("optimized_query").String())
	if optimized == "" {
		optimized = query
	}

	intent := domain.Intent(strings.ToLower(strings.TrimSpace(parsed.Get("intent").String())))
	if !intent.IsValid() {
		intent = domain.IntentLookup
	}
	strategy := domain.Strategy(strings.ToLower(strings.TrimSpace(parsed.Get("strategy").String())))
	if !strategy.IsValid() {
		strategy = domain.StrategySingle
	}

	seen := map[string]bool{strings.ToLower(optimized): true}
	var variants []string
	for _, v := range parsed.Get("variants").Array() {
		if len(variants) >= maxVariants {
			break
		}
		s := strings.TrimSpace(v.String())
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		variants = append(variants, s)
	}

	return domain.QueryOptimization{
		OriginalQuery:  query,
		OptimizedQuery: optimized,
		Intent:         intent,
		Strategy:       strategy,
		Confidence:     clamp01(parsed.Get("confidence").Float()),
		Variants:       variants,
	}, nil
}

// extractJSONObject returns the outermost {...} span of s if it is valid JSON.
// Models often wrap JSON in prose or code fences.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	doc := s[start : end+1]
	if !gjson.Valid(doc) {
		return "", false
	}
	return doc, true
}

func formatHistory(turns []domain.ChatTurn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range turns {
		content := strings.Join(strings.Fields(t.Content), " ")
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(truncateRunes(content, maxContextTurnLength))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
