package proxypool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

// fakeStore is an in-memory Store for selection tests.
type fakeStore struct {
	mu      sync.Mutex
	proxies []models.ProxyRecord
	scores  map[string]models.ProxyScore
	usage   map[string][]models.ProxyUsageEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scores: make(map[string]models.ProxyScore),
		usage:  make(map[string][]models.ProxyUsageEvent),
	}
}

func (f *fakeStore) ListCandidates(_ context.Context, filters models.SelectionFilters) ([]models.ProxyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	excluded := make(map[string]struct{}, len(filters.Exclude))
	for _, id := range filters.Exclude {
		excluded[id] = struct{}{}
	}

	var out []models.ProxyRecord
	for _, p := range f.proxies {
		if !p.Active {
			continue
		}
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		if filters.Class != "" && p.Class != filters.Class {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetScores(_ context.Context, proxyIDs []string) (map[string]models.ProxyScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.ProxyScore)
	for _, id := range proxyIDs {
		if s, ok := f.scores[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeStore) AppendUsage(_ context.Context, event models.ProxyUsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[event.ProxyID] = append(f.usage[event.ProxyID], event)
	return nil
}

func (f *fakeStore) RecentUsage(_ context.Context, proxyID string, limit int) ([]models.ProxyUsageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.usage[proxyID]
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (f *fakeStore) UpsertScore(_ context.Context, score models.ProxyScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[score.ProxyID] = score
	return nil
}

func (f *fakeStore) setScore(id string, composite float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[id] = models.ProxyScore{ProxyID: id, Composite: composite}
}

func record(id string) models.ProxyRecord {
	return models.ProxyRecord{
		ID: id, Host: "proxy-" + id, Port: 8080,
		Protocol: "http", Class: models.ProxyClassDatacenter, Active: true,
	}
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	m := NewManager(store, config.ProxyPoolConfig{ScoreWindow: 100})
	t.Cleanup(m.Close)
	return m
}

func TestSelect_EmptyPoolReturnsNil(t *testing.T) {
	m := newTestManager(t, newFakeStore())

	proxy, err := m.Select(context.Background(), models.SelectionFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxy != nil {
		t.Errorf("expected nil for empty pool, got %v", proxy.ID)
	}
}

func TestSelect_ProportionalToScore(t *testing.T) {
	fs := newFakeStore()
	fs.proxies = []models.ProxyRecord{record("low"), record("high")}
	fs.setScore("low", 10)
	fs.setScore("high", 90)

	m := newTestManager(t, fs)

	const trials = 2000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		proxy, err := m.Select(context.Background(), models.SelectionFilters{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[proxy.ID]++
	}

	// Expected 90% for "high"; allow generous sampling tolerance.
	highShare := float64(counts["high"]) / trials
	if highShare < 0.84 || highShare > 0.96 {
		t.Errorf("expected ~0.90 share for high-scored proxy, got %.3f", highShare)
	}
	if counts["low"] == 0 {
		t.Error("low-scored proxy should still see some traffic")
	}
}

func TestSelect_UnscoredProxiesGetNeutralWeight(t *testing.T) {
	fs := newFakeStore()
	fs.proxies = []models.ProxyRecord{record("fresh")}

	m := newTestManager(t, fs)

	proxy, err := m.Select(context.Background(), models.SelectionFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxy == nil || proxy.ID != "fresh" {
		t.Fatal("unscored proxy should be selectable at the neutral weight")
	}
}

func TestSelect_MinScoreFilters(t *testing.T) {
	fs := newFakeStore()
	fs.proxies = []models.ProxyRecord{record("weak")}
	fs.setScore("weak", 15)

	m := newTestManager(t, fs)

	proxy, err := m.Select(context.Background(), models.SelectionFilters{MinScore: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxy != nil {
		t.Errorf("expected no candidate above min score, got %v", proxy.ID)
	}
}

func TestSelect_ExcludedNeverSelected(t *testing.T) {
	fs := newFakeStore()
	fs.proxies = []models.ProxyRecord{record("a"), record("b")}
	fs.setScore("a", 99)
	fs.setScore("b", 1)

	m := newTestManager(t, fs)

	for i := 0; i < 200; i++ {
		proxy, err := m.Select(context.Background(), models.SelectionFilters{Exclude: []string{"a"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proxy == nil {
			t.Fatal("expected the remaining candidate")
		}
		if proxy.ID == "a" {
			t.Fatal("excluded proxy was selected")
		}
	}
}

func TestReport_RecomputesScoreFromWindow(t *testing.T) {
	fs := newFakeStore()
	fs.proxies = []models.ProxyRecord{record("p1")}

	m := newTestManager(t, fs)

	m.Report(models.ProxyUsageEvent{ProxyID: "p1", Success: true, LatencyMs: 200})
	m.Report(models.ProxyUsageEvent{ProxyID: "p1", BanReason: "http_403", LatencyMs: 200})

	// The report worker is asynchronous; poll for the materialized score.
	deadline := time.Now().Add(2 * time.Second)
	for {
		fs.mu.Lock()
		score, ok := fs.scores["p1"]
		fs.mu.Unlock()
		if ok && score.TotalUses == 2 {
			if score.SuccessCount != 1 || score.BanCount != 1 {
				t.Fatalf("unexpected counters: %+v", score)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("score was not materialized in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose_DrainsQueuedReports(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, config.ProxyPoolConfig{})

	for i := 0; i < 10; i++ {
		m.Report(models.ProxyUsageEvent{ProxyID: "p1", Success: true})
	}
	m.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.usage["p1"]) != 10 {
		t.Errorf("expected 10 drained events, got %d", len(fs.usage["p1"]))
	}
}
