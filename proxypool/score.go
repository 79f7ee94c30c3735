package proxypool

import (
	"time"

	"github.com/flowmatic/harvester/models"
)

// NeutralScore is the weight used for proxies with no usage history: the
// midpoint of the scale, so new proxies are eligible without being favored
// over proven ones.
const NeutralScore = 50.0

// Scoring weights. Success dominates; the ban term is separate from raw
// failure because bans indicate systemic proxy burn, not transient noise.
const (
	successWeight = 0.7
	banWeight     = 0.3
)

// latencyBonus maps average latency onto a step-function bonus.
func latencyBonus(avgMs float64) float64 {
	switch {
	case avgMs < 500:
		return 20
	case avgMs < 1000:
		return 15
	case avgMs < 2000:
		return 10
	case avgMs < 5000:
		return 5
	default:
		return 0
	}
}

// Compute derives a ProxyScore from a window of usage events (the most
// recent N, any order). An empty window yields the neutral score with zero
// counters.
func Compute(proxyID string, events []models.ProxyUsageEvent, now time.Time) models.ProxyScore {
	score := models.ProxyScore{
		ProxyID:      proxyID,
		Composite:    NeutralScore,
		LastScoredAt: now,
	}
	if len(events) == 0 {
		return score
	}

	var latencySum int64
	for _, e := range events {
		score.TotalUses++
		switch {
		case e.Banned():
			score.BanCount++
		case e.Success:
			score.SuccessCount++
		default:
			score.FailCount++
		}
		latencySum += e.LatencyMs
		if e.CreatedAt.After(score.LastUsedAt) {
			score.LastUsedAt = e.CreatedAt
		}
	}

	total := float64(score.TotalUses)
	score.SuccessRate = float64(score.SuccessCount) / total * 100
	score.BanRate = float64(score.BanCount) / total * 100
	score.AvgLatencyMs = float64(latencySum) / total

	composite := score.SuccessRate*successWeight -
		score.BanRate*banWeight +
		latencyBonus(score.AvgLatencyMs)
	score.Composite = clamp(composite, 0, 100)

	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
