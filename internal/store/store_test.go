package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/profile"
	"github.com/abhisek/mca/internal/thresholds"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// journal_mode is "memory" for in-memory databases.
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		if err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, tbl := range Tables {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, tbl.Name).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", tbl.Name, err)
		}
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		n, err := s.seq.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if n <= prev {
			t.Fatalf("sequence not increasing: %d after %d", n, prev)
		}
		prev = n
	}
}

func TestFeedbackAppendAndList(t *testing.T) {
	s := openTestStore(t)
	repo := s.FeedbackRepo()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []thresholds.FeedbackEntry{
		{ID: "f1", UserID: "u1", Predicted: pattern.F, Actual: pattern.F, Accurate: true, Timestamp: base},
		{ID: "f2", UserID: "u2", Predicted: pattern.A, Actual: pattern.D, Accurate: false, Timestamp: base.Add(time.Minute)},
		{ID: "f3", UserID: "u1", Predicted: pattern.C, Actual: pattern.C, Accurate: true, Timestamp: base.Add(2 * time.Minute), Context: thresholds.HybridContext},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	all, err := repo.List(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	for i, e := range all {
		if e.ID != entries[i].ID {
			t.Errorf("entry %d = %s, want %s", i, e.ID, entries[i].ID)
		}
	}
	if all[1].Actual != pattern.D || all[1].Accurate {
		t.Errorf("f2 round trip = %+v", all[1])
	}
	if all[2].Context != thresholds.HybridContext {
		t.Errorf("f3 context = %q", all[2].Context)
	}
	if !all[0].Timestamp.Equal(base) {
		t.Errorf("f1 timestamp = %v, want %v", all[0].Timestamp, base)
	}

	latest, err := repo.List(ctx, QueryOpts{Limit: 2})
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "f2" || latest[1].ID != "f3" {
		t.Errorf("limit 2 = %+v, want f2,f3", latest)
	}

	byUser, err := repo.List(ctx, QueryOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("u1 entries = %d, want 2", len(byUser))
	}
}

func TestFeedbackDuplicateIDRejected(t *testing.T) {
	s := openTestStore(t)
	repo := s.FeedbackRepo()
	ctx := context.Background()

	e := thresholds.FeedbackEntry{ID: "dup", UserID: "u1", Predicted: pattern.B, Actual: pattern.B, Accurate: true}
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := repo.Append(ctx, e); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate append: got %v, want ErrDuplicate", err)
	}
}

func TestVersionSaveListLatest(t *testing.T) {
	s := openTestStore(t)
	repo := s.VersionRepo()
	ctx := context.Background()

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest (empty): %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil version when none exist")
	}

	set := thresholds.Defaults()
	set[thresholds.FQueryRatio] = 0.66
	versions := []thresholds.AlgorithmVersion{
		{Version: 1, Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Description: "widen F", Thresholds: set,
			Changes: map[string]thresholds.Change{thresholds.FQueryRatio: {From: 0.70, To: 0.66}},
			Metrics: thresholds.Metrics{Accuracy: 0.6, Coverage: 1, FalsePositiveRate: 0.1, Total: 10}},
		{Version: 2, Timestamp: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Description: "sharpen A", Thresholds: thresholds.Defaults()},
	}
	// Save out of order; List sorts by version.
	for _, i := range []int{1, 0} {
		if err := repo.Save(ctx, versions[i]); err != nil {
			t.Fatalf("save v%d: %v", versions[i].Version, err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Version != 1 || got[1].Version != 2 {
		t.Fatalf("list = %+v", got)
	}
	if got[0].Thresholds[thresholds.FQueryRatio] != 0.66 {
		t.Errorf("thresholds = %v", got[0].Thresholds)
	}
	if c := got[0].Changes[thresholds.FQueryRatio]; c.From != 0.70 || c.To != 0.66 {
		t.Errorf("change = %+v", c)
	}
	if got[0].Metrics.Total != 10 {
		t.Errorf("metrics = %+v", got[0].Metrics)
	}

	latest, err = repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Version != 2 {
		t.Fatalf("latest = %+v, want version 2", latest)
	}

	if err := repo.Save(ctx, versions[0]); err == nil {
		t.Error("expected error saving an existing version number")
	}
}

func TestSnapshotSaveLatestPrune(t *testing.T) {
	s := openTestStore(t)
	repo := s.SnapshotRepo()
	ctx := context.Background()

	snap, err := repo.Latest(ctx, "s1")
	if err != nil {
		t.Fatalf("latest (empty): %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil snapshot when none exist")
	}

	for turn := 1; turn <= 4; turn++ {
		sess := "s1"
		if turn == 4 {
			sess = "s2"
		}
		sn := &StabilitySnapshot{
			SessionID: sess, UserID: "u1", Turn: turn,
			Pattern: "C", Confidence: 0.5 + float64(turn)/10,
			Stable: turn > 2, Trend: "increasing", Method: "hybrid",
		}
		if err := repo.Save(ctx, sn); err != nil {
			t.Fatalf("save turn %d: %v", turn, err)
		}
		if sn.ID == 0 || sn.Sequence == 0 {
			t.Fatalf("save did not fill id/sequence: %+v", sn)
		}
	}

	snap, err = repo.Latest(ctx, "s1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap == nil || snap.Turn != 3 || !snap.Stable {
		t.Fatalf("latest s1 = %+v, want turn 3 stable", snap)
	}

	list, err := repo.List(ctx, QueryOpts{SessionID: "s1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Turn != 1 {
		t.Fatalf("list s1 = %+v", list)
	}

	if err := repo.Prune(ctx, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	list, err = repo.List(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(list) != 2 || list[0].Turn != 3 || list[1].Turn != 4 {
		t.Fatalf("after prune = %+v, want turns 3,4", list)
	}

	// Pruning with more room than rows is a no-op.
	if err := repo.Prune(ctx, 10); err != nil {
		t.Fatalf("prune no-op: %v", err)
	}
}

func TestLLMEventsAndUsage(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "anthropic", Model: "m1", Purpose: "pattern-classification", InputTokens: 100, OutputTokens: 20, LatencyMs: 100, Success: true},
		{Provider: "anthropic", Model: "m1", Purpose: "pattern-classification", InputTokens: 50, OutputTokens: 10, LatencyMs: 300, Success: true},
		{Provider: "openai", Model: "m2", Purpose: "rubric-scoring", InputTokens: 10, LatencyMs: 50, ErrorMessage: "timeout"},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].Model != "m2" || got[0].Success {
		t.Errorf("newest event = %+v", got[0])
	}

	one, err := repo.GetLLMEvent(ctx, got[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if one == nil || one.ErrorMessage != "timeout" {
		t.Fatalf("get = %+v", one)
	}
	missing, err := repo.GetLLMEvent(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("get missing = %+v, %v", missing, err)
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("usage by purpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("usage rows = %d, want 2", len(byPurpose))
	}
	pc := byPurpose[0]
	if pc.Key != "pattern-classification" || pc.Calls != 2 || pc.InputTokens != 150 || pc.OutputTokens != 30 || pc.AvgLatencyMs != 200 {
		t.Errorf("pattern-classification usage = %+v", pc)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("usage by model: %v", err)
	}
	if len(byModel) != 2 || byModel[1].Key != "m2" || byModel[1].Calls != 1 {
		t.Errorf("usage by model = %+v", byModel)
	}
}

func TestProfileUpsert(t *testing.T) {
	s := openTestStore(t)
	repo := s.ProfileRepo()
	ctx := context.Background()

	got, err := repo.Get(ctx, "u1")
	if err != nil || got != nil {
		t.Fatalf("get missing = %+v, %v", got, err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p, err := profile.Assess("u1", pattern.Scores{P1: 3, P2: 3, P3: 3, P4: 3, M2: 3, E3: 3}, profile.Indicators{TrustHistory: []float64{0.4, 0.7}}, at)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Pattern != p.Pattern || got.Scores != p.Scores || !got.AssessedAt.Equal(at) {
		t.Errorf("profile = %+v, want %+v", got, p)
	}
	if got.Indicators.TrustScore() != 0.7 {
		t.Errorf("trust score = %v, want 0.7", got.Indicators.TrustScore())
	}

	p2, err := p.Reassess(pattern.Scores{}, profile.Indicators{}, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("reassess: %v", err)
	}
	if err := repo.Save(ctx, p2); err != nil {
		t.Fatalf("save reassessed: %v", err)
	}
	got, err = repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.Pattern != p2.Pattern {
		t.Errorf("pattern after upsert = %s, want %s", got.Pattern, p2.Pattern)
	}
}
