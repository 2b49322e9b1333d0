package services

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

const componentRetrieval = "retrieval"

// RetrievalEngine runs the optimizer's queries against the vector store and
// merges the results into a deduplicated candidate list.
type RetrievalEngine struct {
	store    driven.VectorStore
	settings domain.RetrievalSettings
	tracker  *ErrorTracker
	metrics  driven.MetricsRecorder
}

// NewRetrievalEngine creates a retrieval engine.
func NewRetrievalEngine(store driven.VectorStore, settings domain.RetrievalSettings, tracker *ErrorTracker) *RetrievalEngine {
	return &RetrievalEngine{
		store:    store,
		settings: settings,
		tracker:  tracker,
	}
}

// SetMetrics sets the recorder for retrieval measurements.
func (e *RetrievalEngine) SetMetrics(m driven.MetricsRecorder) {
	e.metrics = m
}

type searchOutcome struct {
	chunks []domain.Chunk
	err    error
}

// Retrieve gathers up to maxResults unique chunks for opt.
// Failed searches are recorded and skipped; they never abort the retrieval.
func (e *RetrievalEngine) Retrieve(
	ctx context.Context,
	opt domain.QueryOptimization,
	maxResults int,
	filter domain.ChunkFilter,
) domain.RetrievalResult {
	if maxResults <= 0 {
		maxResults = e.settings.MaxResults
	}

	queries := e.queriesFor(opt)
	k := maxResults
	if opt.Strategy == domain.StrategyBroad {
		k *= e.settings.BroadFactor
	}

	workers := e.settings.Workers
	if workers < 1 {
		workers = 1
	}

	result := domain.RetrievalResult{Chunks: []domain.Chunk{}, QueriesTried: []string{}}
	seen := make(map[string]bool)
	scored := e.store.Capabilities().Similarity
	next := 0

	for next < len(queries) && result.Iterations < e.settings.MaxIterations && len(result.Chunks) < maxResults {
		if ctx.Err() != nil {
			break
		}

		size := min(workers, len(queries)-next, e.settings.MaxIterations-result.Iterations)
		wave := queries[next : next+size]
		next += size

		outcomes := make([]searchOutcome, len(wave))
		var wg sync.WaitGroup
		for i, q := range wave {
			wg.Add(1)
			go func(i int, q string) {
				defer wg.Done()
				outcomes[i] = e.search(ctx, q, k, filter)
			}(i, q)
		}
		wg.Wait()

		// Merge in query order so results do not depend on scheduling.
		for i, q := range wave {
			result.QueriesTried = append(result.QueriesTried, q)
			result.Iterations++

			if err := outcomes[i].err; err != nil {
				logger.Warn("retrieval: query %q failed: %v", q, err)
				result.Failures = append(result.Failures, domain.QueryFailure{Query: q, Error: err.Error()})
				if e.tracker != nil {
					e.tracker.Record(componentRetrieval, Wrap(componentRetrieval, "search", err), true)
				}
				continue
			}

			for _, c := range outcomes[i].chunks {
				if !filter.Matches(c) {
					continue
				}
				if scored && c.Score < e.settings.MinSimilarity {
					continue
				}
				id := c.ID()
				if seen[id] {
					continue
				}
				seen[id] = true
				result.Chunks = append(result.Chunks, c)
			}
		}
	}

	if len(result.Chunks) > maxResults {
		result.Chunks = result.Chunks[:maxResults]
	}

	logger.Debug("retrieval: %d unique chunks from %d queries", len(result.Chunks), result.Iterations)
	if e.metrics != nil {
		e.metrics.ObserveRetrieval(result.Iterations, len(result.Chunks))
	}
	return result
}

func (e *RetrievalEngine) search(ctx context.Context, query string, k int, filter domain.ChunkFilter) searchOutcome {
	if e.settings.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.SearchTimeout)
		defer cancel()
	}
	chunks, err := e.store.Search(ctx, query, k, filter)
	return searchOutcome{chunks: chunks, err: err}
}

// queriesFor returns the distinct queries to issue for opt, in priority order.
func (e *RetrievalEngine) queriesFor(opt domain.QueryOptimization) []string {
	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	add(opt.OptimizedQuery)
	if opt.OptimizedQuery == "" {
		add(opt.OriginalQuery)
	}

	if opt.Strategy == domain.StrategyExpanded || opt.Strategy == domain.StrategyBroad {
		for i, v := range opt.Variants {
			if i >= e.settings.MaxVariants {
				break
			}
			add(v)
		}
	}
	if opt.Strategy == domain.StrategyBroad {
		add(opt.OriginalQuery)
	}
	return queries
}
