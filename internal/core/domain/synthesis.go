package domain

// Completeness grades how fully an answer covers the question.
type Completeness string

// Completeness levels.
const (
	CompletenessComplete     Completeness = "complete"
	CompletenessPartial      Completeness = "partial"
	CompletenessInsufficient Completeness = "insufficient"
)

// IsValid returns true if the completeness level is recognised.
func (c Completeness) IsValid() bool {
	switch c {
	case CompletenessComplete, CompletenessPartial, CompletenessInsufficient:
		return true
	default:
		return false
	}
}

// NoInformationAnswer is returned when nothing relevant was retrieved.
const NoInformationAnswer = "I don't have any relevant information about that in memory."

// CandidateChunk is a retrieved chunk annotated by the security validator.
type CandidateChunk struct {
	Chunk   Chunk  `json:"chunk"`
	IsSafe  bool   `json:"is_safe"`
	Warning string `json:"warning,omitempty"`
}

// Citation points an answer back to the source that supports it.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// SynthesisResult is the final answer to a query.
//
// A result built from at least one chunk always carries at least one citation.
// A result built from zero chunks is insufficient, has zero confidence and no citations.
type SynthesisResult struct {
	Query        string       `json:"query"`
	Answer       string       `json:"answer"`
	Confidence   float64      `json:"confidence"`
	Completeness Completeness `json:"completeness"`
	Citations    []Citation   `json:"citations"`
	Warnings     []string     `json:"warnings,omitempty"`

	// ChunkCount is the number of chunks the answer was built from.
	ChunkCount int `json:"chunk_count"`

	// Optimization is the query rewrite that drove retrieval, when available.
	Optimization *QueryOptimization `json:"optimization,omitempty"`
}

// EmptySynthesis returns the result for a query with no relevant chunks.
func EmptySynthesis(query string) SynthesisResult {
	return SynthesisResult{
		Query:        query,
		Answer:       NoInformationAnswer,
		Confidence:   0,
		Completeness: CompletenessInsufficient,
		Citations:    []Citation{},
	}
}
