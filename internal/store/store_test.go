package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "adaptiq.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestWithPragmas(t *testing.T) {
	got := withPragmas("/tmp/a.db")
	if !strings.HasPrefix(got, "/tmp/a.db?_pragma=") {
		t.Fatalf("withPragmas = %q", got)
	}
	if n := strings.Count(got, "_pragma="); n != len(connPragmas) {
		t.Errorf("pragma params = %d, want %d", n, len(connPragmas))
	}
	if got := withPragmas("file:x.db?mode=rwc"); !strings.HasPrefix(got, "file:x.db?mode=rwc&_pragma=") {
		t.Errorf("existing query not extended: %q", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adaptiq.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.IncrementExposure(ctx, "it-1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	counts, _, err := s.LoadExposure(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if counts["it-1"] != 1 {
		t.Errorf("count = %d, want 1", counts["it-1"])
	}
}

func TestSessionSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := session.Snapshot{
		SessionID:   "s1",
		TestTakerID: "learner",
		Subject:     "math",
		Grade:       "5",
		Status:      session.StatusInProgress,
		Theta:       0,
		StartedAt:   start,
		UpdatedAt:   start,
	}
	if err := s.SaveSession(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StandardError != nil {
		t.Errorf("standard error = %v, want nil", *got.StandardError)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("started at = %v, want %v", got.StartedAt, start)
	}

	// Upsert replaces the row.
	snap.Status = session.StatusCompleted
	snap.StopReason = "max_items_reached"
	snap.Theta = 0.42
	snap.StandardError = ptr(0.28)
	snap.FinalTheta = ptr(0.40)
	snap.FinalSE = ptr(0.27)
	snap.ItemCount = 30
	snap.PercentCorrect = 56.7
	snap.DurationSecs = 1200
	snap.UpdatedAt = start.Add(20 * time.Minute)
	if err := s.SaveSession(ctx, snap); err != nil {
		t.Fatalf("save update: %v", err)
	}

	got, err = s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if got.Status != session.StatusCompleted || got.StopReason != "max_items_reached" {
		t.Errorf("status = %s/%s, want completed/max_items_reached", got.Status, got.StopReason)
	}
	if got.StandardError == nil || *got.StandardError != 0.28 {
		t.Errorf("standard error = %v, want 0.28", got.StandardError)
	}
	if got.FinalTheta == nil || *got.FinalTheta != 0.40 {
		t.Errorf("final theta = %v, want 0.40", got.FinalTheta)
	}
	if got.ItemCount != 30 {
		t.Errorf("item count = %d, want 30", got.ItemCount)
	}
	if !got.UpdatedAt.Equal(snap.UpdatedAt) {
		t.Errorf("updated at = %v, want %v", got.UpdatedAt, snap.UpdatedAt)
	}

	all, err := s.ListSessions(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("list len = %d, want 1", len(all))
	}
}

func TestSaveSessionIgnoresStaleSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(seq uint64, items int) session.Snapshot {
		return session.Snapshot{
			Seq:         seq,
			SessionID:   "s1",
			TestTakerID: "learner",
			Subject:     "math",
			Grade:       "5",
			Status:      session.StatusInProgress,
			ItemCount:   items,
			StartedAt:   start,
			UpdatedAt:   start.Add(time.Duration(items) * time.Minute),
		}
	}

	for _, snap := range []session.Snapshot{at(3, 5), at(2, 4)} {
		if err := s.SaveSession(ctx, snap); err != nil {
			t.Fatalf("save seq %d: %v", snap.Seq, err)
		}
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seq != 3 || got.ItemCount != 5 {
		t.Errorf("after stale write: seq %d items %d, want seq 3 items 5", got.Seq, got.ItemCount)
	}

	if err := s.SaveSession(ctx, at(4, 6)); err != nil {
		t.Fatalf("save seq 4: %v", err)
	}
	got, err = s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seq != 4 || got.ItemCount != 6 {
		t.Errorf("after newer write: seq %d items %d, want seq 4 items 6", got.Seq, got.ItemCount)
	}
}

func TestSnapshotQueueWritesToStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := session.NewSnapshotQueue(s, time.Second, nil)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for seq := uint64(1); seq <= 10; seq++ {
		err := q.SaveSession(ctx, session.Snapshot{
			Seq:         seq,
			SessionID:   "s1",
			TestTakerID: "learner",
			Status:      session.StatusInProgress,
			ItemCount:   int(seq),
			StartedAt:   start,
			UpdatedAt:   start,
		})
		if err != nil {
			t.Fatalf("queue seq %d: %v", seq, err)
		}
	}
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close queue: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seq != 10 || got.ItemCount != 10 {
		t.Errorf("seq %d items %d, want the last queued snapshot", got.Seq, got.ItemCount)
	}
}

func TestListSessionsFiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []struct {
		id     string
		taker  string
		status session.Status
		offset time.Duration
	}{
		{"a", "learner-1", session.StatusCompleted, 1 * time.Minute},
		{"b", "learner-2", session.StatusInProgress, 2 * time.Minute},
		{"c", "learner-1", session.StatusExpired, 3 * time.Minute},
		{"d", "learner-1", session.StatusInProgress, 4 * time.Minute},
	}
	for _, sd := range seed {
		err := s.SaveSession(ctx, session.Snapshot{
			SessionID:   sd.id,
			TestTakerID: sd.taker,
			Subject:     "math",
			Grade:       "5",
			Status:      sd.status,
			StartedAt:   base,
			UpdatedAt:   base.Add(sd.offset),
		})
		if err != nil {
			t.Fatalf("save %s: %v", sd.id, err)
		}
	}

	tests := []struct {
		name string
		opts ListOpts
		want []string
	}{
		{"all newest first", ListOpts{}, []string{"d", "c", "b", "a"}},
		{"by status", ListOpts{Status: session.StatusInProgress}, []string{"d", "b"}},
		{"by taker", ListOpts{TestTakerID: "learner-1"}, []string{"d", "c", "a"}},
		{"limit", ListOpts{Limit: 2}, []string{"d", "c"}},
		{"since", ListOpts{Since: base.Add(3 * time.Minute)}, []string{"d", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSessions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			ids := make([]string, len(got))
			for i, snap := range got {
				ids[i] = snap.SessionID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tt.want)
				}
			}
		})
	}

	n, err := s.PruneSessions(ctx, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	left, err := s.ListSessions(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}
}

func TestExposureCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	counts, total, err := s.LoadExposure(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(counts) != 0 || total != 0 {
		t.Fatalf("empty store: counts=%v total=%d", counts, total)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementExposure(ctx, "it-1"); err != nil {
			t.Fatalf("increment it-1: %v", err)
		}
	}
	if err := s.IncrementExposure(ctx, "it-2"); err != nil {
		t.Fatalf("increment it-2: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := s.IncrementAssessments(ctx); err != nil {
			t.Fatalf("increment assessments: %v", err)
		}
	}

	counts, total, err = s.LoadExposure(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if counts["it-1"] != 3 || counts["it-2"] != 1 {
		t.Errorf("counts = %v, want it-1=3 it-2=1", counts)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
}

func TestExposureForwarderPersists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fwd := exposure.NewForwarder(s, exposure.DefaultForwarderConfig(), nil)
	tracker := exposure.NewTracker(nil, fwd)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordAssessment()
			tracker.RecordExposure("it-1")
		}()
	}
	wg.Wait()
	if err := fwd.Close(ctx); err != nil {
		t.Fatalf("close forwarder: %v", err)
	}

	counts, total, err := s.LoadExposure(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if counts["it-1"] != 10 || total != 10 {
		t.Errorf("counts=%v total=%d, want it-1=10 total=10", counts, total)
	}
}

func TestDefaultDBPathFromEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "custom.db")
	t.Setenv("ADAPTIQ_DB", p)

	got, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	if got != p {
		t.Errorf("path = %q, want %q", got, p)
	}
	if _, err := os.Stat(filepath.Dir(p)); err != nil {
		t.Errorf("parent dir not created: %v", err)
	}
}

func TestDefaultDBPathXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ADAPTIQ_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)

	got, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("default path: %v", err)
	}
	want := filepath.Join(dir, "adaptiq", "adaptiq.db")
	if got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}
