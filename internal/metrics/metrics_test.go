package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.RecordDispatch("search")
	r.RecordDispatch("search")
	r.RecordDispatch("browse")
	r.RecordDeferred()
	r.RecordPageFetch("ok", 0.1)
	r.RecordPageFetch("error", 0.2)
	r.RecordStale()
	r.RecordMutation("rolled_back")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.DispatchTotal.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DispatchTotal.WithLabelValues("browse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DispatchDeferredTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PageFetchTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PageFetchTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StaleResponsesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MutationTotal.WithLabelValues("rolled_back")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordDispatch("search")
		r.RecordDeferred()
		r.RecordPageFetch("ok", 1)
		r.RecordStale()
		r.RecordMutation("committed")
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.RecordStale()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dealgrip_stale_responses_total 1"))
}
