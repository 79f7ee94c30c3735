package proxypool

import (
	"testing"
	"time"

	"github.com/flowmatic/harvester/models"
)

func eventBatch(success, ban, fail int, latencyMs int64) []models.ProxyUsageEvent {
	var events []models.ProxyUsageEvent
	for i := 0; i < success; i++ {
		events = append(events, models.ProxyUsageEvent{
			ProxyID: "p1", Success: true, LatencyMs: latencyMs,
		})
	}
	for i := 0; i < ban; i++ {
		events = append(events, models.ProxyUsageEvent{
			ProxyID: "p1", BanReason: "http_403", LatencyMs: latencyMs,
		})
	}
	for i := 0; i < fail; i++ {
		events = append(events, models.ProxyUsageEvent{
			ProxyID: "p1", LatencyMs: latencyMs,
		})
	}
	return events
}

func TestCompute_EmptyWindowIsNeutral(t *testing.T) {
	score := Compute("p1", nil, time.Now())

	if score.Composite != NeutralScore {
		t.Errorf("empty window should score %v, got %v", NeutralScore, score.Composite)
	}
	if score.TotalUses != 0 {
		t.Errorf("expected zero uses, got %d", score.TotalUses)
	}
}

func TestCompute_WeightedComposite(t *testing.T) {
	// 70% success, 20% ban, 10% fail at 400ms average:
	// 70*0.7 - 20*0.3 + 20 = 49 - 6 + 20 = 63.
	score := Compute("p1", eventBatch(70, 20, 10, 400), time.Now())

	if score.SuccessRate != 70 {
		t.Errorf("expected success rate 70, got %v", score.SuccessRate)
	}
	if score.BanRate != 20 {
		t.Errorf("expected ban rate 20, got %v", score.BanRate)
	}
	if score.Composite != 63 {
		t.Errorf("expected composite 63, got %v", score.Composite)
	}
}

func TestCompute_BanTakesPrecedenceOverSuccessFlag(t *testing.T) {
	// A banned event is a ban even if the transport nominally succeeded.
	events := []models.ProxyUsageEvent{
		{ProxyID: "p1", Success: true, BanReason: "http_429"},
	}
	score := Compute("p1", events, time.Now())

	if score.BanCount != 1 || score.SuccessCount != 0 {
		t.Errorf("ban classification wrong: bans=%d successes=%d",
			score.BanCount, score.SuccessCount)
	}
}

func TestCompute_ClampedToRange(t *testing.T) {
	// All bans: 0*0.7 - 100*0.3 + 20 = -10 → clamped to 0.
	low := Compute("p1", eventBatch(0, 50, 0, 100), time.Now())
	if low.Composite != 0 {
		t.Errorf("expected clamp to 0, got %v", low.Composite)
	}

	// All fast successes: 100*0.7 + 20 = 90, inside the range.
	high := Compute("p1", eventBatch(50, 0, 0, 100), time.Now())
	if high.Composite != 90 {
		t.Errorf("expected 90, got %v", high.Composite)
	}
}

func TestLatencyBonus_Steps(t *testing.T) {
	cases := []struct {
		ms   float64
		want float64
	}{
		{100, 20}, {499, 20}, {500, 15}, {999, 15},
		{1000, 10}, {1999, 10}, {2000, 5}, {4999, 5}, {5000, 0},
	}
	for _, tc := range cases {
		if got := latencyBonus(tc.ms); got != tc.want {
			t.Errorf("latencyBonus(%v) = %v, want %v", tc.ms, got, tc.want)
		}
	}
}

func TestCompute_TracksLastUsed(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	events := []models.ProxyUsageEvent{
		{ProxyID: "p1", Success: true, CreatedAt: older},
		{ProxyID: "p1", Success: true, CreatedAt: newer},
	}
	score := Compute("p1", events, time.Now())

	if !score.LastUsedAt.Equal(newer) {
		t.Errorf("expected last used %v, got %v", newer, score.LastUsedAt)
	}
}
