package prometheus

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveQuery(domain.CompletenessComplete, 0.9, 300*time.Millisecond)
	r.ObserveQuery(domain.CompletenessComplete, 0.7, time.Second)
	r.ObserveQuery(domain.CompletenessInsufficient, 0, 10*time.Millisecond)
	r.IncSecurityFlag("imperative_density")
	r.IncError(domain.KindNetwork, "synthesis")
	r.IncError(domain.KindNetwork, "synthesis")
	r.IncBackup(domain.BackupStatusPartial)

	assert.InDelta(t, 2, testutil.ToFloat64(r.queries.WithLabelValues("complete")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.queries.WithLabelValues("insufficient")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.securityFlags.WithLabelValues("imperative_density")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.errors.WithLabelValues("NetworkError", "synthesis")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.backups.WithLabelValues("partial")), 0)
}

func TestRecorder_Histograms(t *testing.T) {
	r := New()
	r.ObserveRetrieval(2, 7)
	r.ObserveRetrieval(1, 0)

	expected := `
# HELP recall_retrieval_iterations Search rounds per retrieval.
# TYPE recall_retrieval_iterations histogram
recall_retrieval_iterations_bucket{le="1"} 1
recall_retrieval_iterations_bucket{le="2"} 2
recall_retrieval_iterations_bucket{le="3"} 2
recall_retrieval_iterations_bucket{le="5"} 2
recall_retrieval_iterations_bucket{le="8"} 2
recall_retrieval_iterations_bucket{le="12"} 2
recall_retrieval_iterations_bucket{le="20"} 2
recall_retrieval_iterations_bucket{le="+Inf"} 2
recall_retrieval_iterations_sum 3
recall_retrieval_iterations_count 2
`
	require.NoError(t, testutil.CollectAndCompare(r.iterations, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.retrievedChunks))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncBackup(domain.BackupStatusComplete)

	assert.InDelta(t, 1, testutil.ToFloat64(a.backups.WithLabelValues("complete")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.backups.WithLabelValues("complete")), 0)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.IncError(domain.KindStorage, "backup")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `recall_errors_total{component="backup",kind="StorageError"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
