package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/adaptiq/internal/config"
	"github.com/abhisek/adaptiq/internal/session"
)

const bankYAML = `format: v1.0.0
items:
  - id: m-1
    b: -1.0
    a: 1.2
    subject: math
    grade: "6"
    skill: ratios
  - id: m-2
    b: 0.0
    a: 1.0
    subject: math
    grade: "6"
    skill: ratios
  - id: m-3
    b: 0.3
    a: 1.5
    subject: math
    grade: "6"
    skill: equations
`

func writeBank(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "items.yaml")
	require.NoError(t, os.WriteFile(p, []byte(bankYAML), 0o644))
	return p
}

func testConfig(t *testing.T, dir string) config.Config {
	cfg := config.DefaultConfig()
	cfg.ItemBank = writeBank(t, dir)
	cfg.Seed = 5
	return cfg
}

func TestNewInMemory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := New(ctx, Options{Config: testConfig(t, dir)})
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Store)
	assert.Equal(t, 3, a.Bank.Len())
	assert.Equal(t, uint64(5), a.Seed())

	res, err := a.Sessions.Start(ctx, "learner", "math", "6")
	require.NoError(t, err)
	require.NotNil(t, res.Item)
}

func TestNewMissingBank(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ItemBank = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := New(context.Background(), Options{Config: cfg})
	assert.Error(t, err)
}

func TestPersistentRestoresExposure(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "adaptiq.db")
	ctx := context.Background()
	cfg := testConfig(t, dir)

	a, err := New(ctx, Options{Config: cfg, DBPath: dbPath})
	require.NoError(t, err)
	start, err := a.Sessions.Start(ctx, "learner", "math", "6")
	require.NoError(t, err)
	served := start.Item.ID
	require.NoError(t, a.Close(ctx))

	b, err := New(ctx, Options{Config: cfg, DBPath: dbPath})
	require.NoError(t, err)
	defer b.Close(ctx)

	assert.Equal(t, int64(1), b.Tracker.TotalAssessments())
	assert.Equal(t, int64(1), b.Tracker.Count(served))

	snap, err := b.Store.GetSession(ctx, start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, snap.Status)
	assert.Equal(t, uint64(1), snap.Seq)
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.WatchItemBank = true
	cfg.Session.SweepInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, Options{Config: cfg})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	updated := bankYAML + `  - id: m-4
    b: 1.1
    a: 1.1
    subject: math
    grade: "6"
`
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfg.ItemBank, []byte(updated), 0o644))
	assert.Eventually(t, func() bool { return a.Bank.Len() == 4 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Close(context.Background()))
}
