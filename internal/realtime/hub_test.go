package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

func testBatch(runID string, family contracts.StrategyFamily, symbols ...string) contracts.RecommendationBatch {
	recs := make([]contracts.Recommendation, len(symbols))
	for i, s := range symbols {
		recs[i] = contracts.Recommendation{
			Rank:            i + 1,
			Symbol:          s,
			NormalizedScore: 90 - float64(i*10),
			Appearances:     1,
		}
	}
	return contracts.RecommendationBatch{
		RunID:           runID,
		StrategyFamily:  family,
		CreatedAt:       time.Date(2026, 10, 16, 21, 5, 0, 0, time.UTC),
		Recommendations: recs,
		Metadata: contracts.RunMetadata{
			RunID:    runID,
			Failures: []contracts.SourceFailure{{AlgorithmID: "gap", Version: "v1", Reason: contracts.FailureEmpty}},
		},
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestNewRunEvent(t *testing.T) {
	ev := NewRunEvent(testBatch("r1", contracts.FamilySwing, "NVDA", "AAPL", "MSFT"), 2)

	assert.Equal(t, TypeRun, ev.Type)
	assert.Equal(t, 3, ev.Returned)
	assert.Equal(t, 1, ev.Failures)
	require.Len(t, ev.Top, 2)
	assert.Equal(t, "NVDA", ev.Top[0].Symbol)
	assert.Equal(t, 80.0, ev.Top[1].Score)
}

func TestHub_HistoryLimit(t *testing.T) {
	hub := NewHub(2, 5, logger.Nop())

	hub.OnRun(testBatch("r1", contracts.FamilySwing, "AAPL"))
	hub.OnRun(testBatch("r2", contracts.FamilyLongterm, "MSFT"))
	hub.OnRun(testBatch("r3", contracts.FamilySwing, "NVDA"))

	all := hub.History("")
	require.Len(t, all, 2)
	assert.Equal(t, "r2", all[0].RunID)
	assert.Equal(t, "r3", all[1].RunID)

	swing := hub.History(contracts.FamilySwing)
	require.Len(t, swing, 1)
	assert.Equal(t, "r3", swing[0].RunID)
}

func TestHub_StreamsRuns(t *testing.T) {
	hub := NewHub(10, 5, logger.Nop())
	hub.OnRun(testBatch("before", contracts.FamilySwing, "AAPL"))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "/")

	var status StatusMessage
	readJSON(t, conn, &status)
	assert.Equal(t, TypeStatus, status.Type)

	var hist HistoryMessage
	readJSON(t, conn, &hist)
	assert.Equal(t, TypeHistory, hist.Type)
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, "before", hist.Runs[0].RunID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.OnRun(testBatch("live", contracts.FamilyIntradayBuy, "TSLA", "NVDA"))

	var ev RunEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, "live", ev.RunID)
	assert.Equal(t, contracts.FamilyIntradayBuy, ev.StrategyFamily)
	require.Len(t, ev.Top, 2)
	assert.Equal(t, "TSLA", ev.Top[0].Symbol)
}

func TestHub_FamilyFilter(t *testing.T) {
	hub := NewHub(10, 5, logger.Nop())
	hub.OnRun(testBatch("old-swing", contracts.FamilySwing, "AAPL"))
	hub.OnRun(testBatch("old-long", contracts.FamilyLongterm, "MSFT"))

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "/?family=longterm")

	var status StatusMessage
	readJSON(t, conn, &status)
	var hist HistoryMessage
	readJSON(t, conn, &hist)
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, "old-long", hist.Runs[0].RunID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.OnRun(testBatch("skip", contracts.FamilySwing, "AAPL"))
	hub.OnRun(testBatch("keep", contracts.FamilyLongterm, "MSFT"))

	var ev RunEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, "keep", ev.RunID)
}

func TestHub_InvalidFamily(t *testing.T) {
	hub := NewHub(10, 5, logger.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?family=weekly")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(10, 5, logger.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "/")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
