package domain

// Intent is the optimizer's classification of what the user wants.
type Intent string

// Known intents.
const (
	IntentLookup      Intent = "lookup"
	IntentExplanation Intent = "explanation"
	IntentComparison  Intent = "comparison"
	IntentProcedure   Intent = "procedure"
	IntentSummary     Intent = "summary"
)

// IsValid returns true if the intent is recognised.
func (i Intent) IsValid() bool {
	switch i {
	case IntentLookup, IntentExplanation, IntentComparison, IntentProcedure, IntentSummary:
		return true
	default:
		return false
	}
}

// Strategy controls how many search variants the retrieval engine issues.
type Strategy string

// Known strategies.
const (
	// StrategySingle searches only the optimized query.
	StrategySingle Strategy = "single"

	// StrategyExpanded adds the optimizer's query variants.
	StrategyExpanded Strategy = "expanded"

	// StrategyBroad adds variants and the original query, with a larger per-query k.
	StrategyBroad Strategy = "broad"
)

// IsValid returns true if the strategy is recognised.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySingle, StrategyExpanded, StrategyBroad:
		return true
	default:
		return false
	}
}

// QueryOptimization is the rewritten form of a user query. It is not persisted.
type QueryOptimization struct {
	OriginalQuery  string   `json:"original_query"`
	OptimizedQuery string   `json:"optimized_query"`
	Intent         Intent   `json:"intent"`
	Strategy       Strategy `json:"strategy"`
	Confidence     float64  `json:"confidence"`
	Variants       []string `json:"variants,omitempty"`

	// Fallback is true when the optimizer could not use the model output.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackOptimization returns the optimization used when the model is unavailable.
func FallbackOptimization(query string) QueryOptimization {
	return QueryOptimization{
		OriginalQuery:  query,
		OptimizedQuery: query,
		Intent:         IntentLookup,
		Strategy:       StrategySingle,
		Confidence:     0,
		Fallback:       true,
	}
}
