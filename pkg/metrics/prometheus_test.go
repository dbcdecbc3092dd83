package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.RecordRun("swing", "ok", 150*time.Millisecond, 12)
	r.RecordRun("swing", "ok", 90*time.Millisecond, 8)
	r.RecordRun("swing", "all_sources_failed", time.Millisecond, 0)
	r.RecordSeedFailure("momentum", "timeout")
	r.RecordAssignment("t1", "challenger")
	r.RecordEvaluation("hit")
	r.RecordTrackerFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("swing", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("swing", "all_sources_failed")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.returned.WithLabelValues("swing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.seedFailures.WithLabelValues("momentum", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.abAssignments.WithLabelValues("t1", "challenger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trackerFailures))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordRun("swing", "ok", time.Second, 1)
		r.RecordSeedFailure("a", "error")
		r.RecordAssignment("t", "control")
		r.RecordEvaluation("miss")
		r.RecordTrackerFailure()
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RecordRun("longterm", "ok", time.Second, 3)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `seedrank_runs_total{family="longterm",status="ok"} 1`)
}
