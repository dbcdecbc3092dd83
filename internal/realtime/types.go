package realtime

import (
	"time"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// Message types sent to feed clients
const (
	TypeRun     = "run"
	TypeHistory = "history"
	TypeStatus  = "status"
)

// RunEvent summarizes one finished run for live clients
// ⭐ SSOT: 실시간 피드 메시지 구조
type RunEvent struct {
	Type           string                   `json:"type"`
	RunID          string                   `json:"run_id"`
	StrategyFamily contracts.StrategyFamily `json:"strategy_family"`
	CreatedAt      time.Time                `json:"created_at"`
	Returned       int                      `json:"returned"`
	Partial        bool                     `json:"partial"`
	Failures       int                      `json:"failures"`
	ABTestID       string                   `json:"ab_test_id,omitempty"`
	ABArm          contracts.ABArm          `json:"ab_arm,omitempty"`
	Top            []TopPick                `json:"top"`
}

// TopPick is one ranked symbol of a RunEvent
type TopPick struct {
	Rank        int     `json:"rank"`
	Symbol      string  `json:"symbol"`
	Score       float64 `json:"score"`
	Appearances int     `json:"appearances"`
	Price       float64 `json:"price,omitempty"`
}

// HistoryMessage replays recent runs to a new client
type HistoryMessage struct {
	Type string     `json:"type"`
	Runs []RunEvent `json:"runs"`
}

// StatusMessage is a connection-level notice
type StatusMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewRunEvent builds the feed message of a batch, keeping the top n picks
func NewRunEvent(batch contracts.RecommendationBatch, n int) RunEvent {
	ev := RunEvent{
		Type:           TypeRun,
		RunID:          batch.RunID,
		StrategyFamily: batch.StrategyFamily,
		CreatedAt:      batch.CreatedAt,
		Returned:       len(batch.Recommendations),
		Partial:        batch.Metadata.Partial,
		Failures:       len(batch.Metadata.Failures),
		ABTestID:       batch.Metadata.ABTestID,
		ABArm:          batch.Metadata.ABArm,
		Top:            make([]TopPick, 0, n),
	}
	for i, r := range batch.Recommendations {
		if i >= n {
			break
		}
		ev.Top = append(ev.Top, TopPick{
			Rank:        r.Rank,
			Symbol:      r.Symbol,
			Score:       r.NormalizedScore,
			Appearances: r.Appearances,
			Price:       r.Price,
		})
	}
	return ev
}
