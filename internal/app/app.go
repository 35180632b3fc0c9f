// Package app assembles the engine runtime: item bank, exposure tracking,
// persistence, selector and session manager, plus the background tasks
// that keep them current.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/adaptiq/internal/config"
	"github.com/abhisek/adaptiq/internal/estimate"
	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/itembank"
	"github.com/abhisek/adaptiq/internal/selector"
	"github.com/abhisek/adaptiq/internal/session"
	"github.com/abhisek/adaptiq/internal/store"
)

// Options configures New.
type Options struct {
	Config config.Config
	Logger *zap.Logger

	// DBPath enables persistence of snapshots and exposure counts. Empty
	// keeps everything in memory.
	DBPath string

	// Bank replaces loading Config.ItemBank from disk.
	Bank *itembank.Bank
}

// App holds the wired engine.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Bank     *itembank.Bank
	Store    *store.Store
	Tracker  *exposure.Tracker
	Selector *selector.Selector
	Sessions *session.Manager

	forwarder *exposure.Forwarder
	snapshots *session.SnapshotQueue
	seed      uint64
}

// New builds the runtime. Persisted exposure counts are loaded into the
// in-memory counter before the first selection.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bank := opts.Bank
	if bank == nil {
		bank = itembank.New()
		if err := bank.LoadFile(cfg.ItemBank); err != nil {
			return nil, fmt.Errorf("load item bank: %w", err)
		}
	}

	a := &App{Config: cfg, Logger: logger, Bank: bank}

	counter := exposure.NewCounter()
	var sink session.SnapshotSink
	if opts.DBPath != "" {
		st, err := store.Open(opts.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		counts, total, err := st.LoadExposure(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("load exposure: %w", err)
		}
		counter.Load(counts, total)
		a.Store = st
		a.forwarder = exposure.NewForwarder(st, cfg.Exposure, logger.Named("exposure"))
		a.snapshots = session.NewSnapshotQueue(st, cfg.Session.SnapshotTimeout, logger.Named("snapshots"))
		sink = a.snapshots
		logger.Debug("exposure counts restored",
			zap.Int("items", len(counts)),
			zap.Int64("assessments", total))
	}
	a.Tracker = exposure.NewTracker(counter, a.forwarder)

	a.seed = cfg.Seed
	if a.seed == 0 {
		a.seed = uint64(time.Now().UnixNano())
	}
	a.Selector = selector.NewSeeded(cfg.Selector, a.seed, logger.Named("selector"))

	mgr, err := session.NewManager(cfg.Session, session.Options{
		Items:     bank,
		Selector:  a.Selector,
		Exposure:  a.Tracker,
		Snapshots: sink,
		Estimator: estimate.New(logger.Named("estimate")),
		Logger:    logger.Named("session"),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Sessions = mgr

	logger.Info("engine ready",
		zap.String("item_bank_format", bank.Version()),
		zap.Int("items", bank.Len()),
		zap.Bool("persistent", a.Store != nil),
		zap.Uint64("seed", a.seed))
	return a, nil
}

// Seed returns the selector seed in use.
func (a *App) Seed() uint64 { return a.seed }

// Run starts the idle-session sweeper and, when configured, the item bank
// watcher. It blocks until ctx ends or a task fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Sessions.RunSweeper(gctx, a.Config.Session.SweepInterval, a.Config.Session.IdleTimeout)
		return nil
	})
	if a.Config.WatchItemBank {
		g.Go(func() error {
			return itembank.Watch(gctx, a.Config.ItemBank, a.Bank, a.Logger.Named("itembank"))
		})
	}
	return g.Wait()
}

// Close flushes queued snapshots and exposure increments, then closes the
// store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.snapshots != nil {
		if err := a.snapshots.Close(ctx); err != nil && !errors.Is(err, session.ErrQueueClosed) {
			errs = append(errs, fmt.Errorf("flush snapshots: %w", err))
		}
	}
	if a.forwarder != nil {
		if err := a.forwarder.Close(ctx); err != nil && !errors.Is(err, exposure.ErrForwarderClosed) {
			errs = append(errs, fmt.Errorf("flush exposure: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
