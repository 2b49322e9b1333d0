package domain

// RetrievalResult holds the deduplicated chunks gathered across query variants.
type RetrievalResult struct {
	// Chunks are unique by ChunkKey, in merge order.
	Chunks []Chunk `json:"chunks"`

	// QueriesTried lists every query issued, in issue order.
	QueriesTried []string `json:"queries_tried"`

	// Iterations counts search attempts, including failed ones.
	Iterations int `json:"iterations"`

	// Failures records queries that errored and were skipped.
	Failures []QueryFailure `json:"failures,omitempty"`
}

// QueryFailure describes a search variant that failed.
type QueryFailure struct {
	Query string `json:"query"`
	Error string `json:"error"`
}
