package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/estimate"
	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/irt"
	"github.com/abhisek/adaptiq/internal/mastery"
	"github.com/abhisek/adaptiq/internal/metrics"
	"github.com/abhisek/adaptiq/internal/selector"
	"github.com/abhisek/adaptiq/internal/stopping"
)

// ItemSource supplies calibrated items and their metadata.
type ItemSource interface {
	irt.ItemLookup
	Pool(subject, grade string) []irt.ItemParameters
	SkillMap() map[string]string
	ContentAreas() map[string]string
}

// Config holds the tunables of a Manager.
type Config struct {
	MLE      estimate.MLEOptions `yaml:"mle"`
	EAP      estimate.EAPOptions `yaml:"eap"`
	Stopping stopping.Config     `yaml:"stopping"`

	// ContentTargets is the desired number of items per content area.
	ContentTargets map[string]int `yaml:"content_targets"`

	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// SnapshotTimeout bounds one background snapshot write.
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		MLE:             estimate.DefaultMLEOptions(),
		EAP:             estimate.DefaultEAPOptions(),
		Stopping:        stopping.DefaultConfig(),
		IdleTimeout:     60 * time.Minute,
		SweepInterval:   time.Minute,
		SnapshotTimeout: 5 * time.Second,
	}
}

// Options are the collaborators of a Manager. Items and Selector are
// required.
type Options struct {
	Items     ItemSource
	Selector  *selector.Selector
	Exposure  *exposure.Tracker
	Snapshots SnapshotSink
	Estimator *estimate.Estimator
	Logger    *zap.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

type entry struct {
	mu    sync.Mutex
	s     *Session
	final *FinalReport
	// seq numbers the snapshots emitted for s.
	seq uint64
}

// Manager owns every live session. Each session is guarded by its own
// mutex; the map lock is only held to look handles up.
type Manager struct {
	cfg      Config
	items    ItemSource
	selector *selector.Selector
	exposure *exposure.Tracker
	sink     SnapshotSink
	est      *estimate.Estimator
	analyzer *mastery.Analyzer
	policy   stopping.Policy
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager validates cfg and wires the collaborators.
func NewManager(cfg Config, opts Options) (*Manager, error) {
	if opts.Items == nil {
		return nil, errors.New("session manager: item source is required")
	}
	if opts.Selector == nil {
		return nil, errors.New("session manager: selector is required")
	}
	if err := cfg.Stopping.Validate(); err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Estimator == nil {
		opts.Estimator = estimate.New(opts.Logger)
	}
	if opts.Exposure == nil {
		opts.Exposure = exposure.NewTracker(nil, nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		cfg:      cfg,
		items:    opts.Items,
		selector: opts.Selector,
		exposure: opts.Exposure,
		sink:     opts.Snapshots,
		est:      opts.Estimator,
		analyzer: mastery.NewAnalyzer(opts.Estimator, cfg.MLE),
		policy:   stopping.New(cfg.Stopping),
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		sessions: make(map[string]*entry),
	}, nil
}

// Config returns the manager configuration.
func (m *Manager) Config() Config { return m.cfg }

// Policy returns the stopping policy in use.
func (m *Manager) Policy() stopping.Policy { return m.policy }

// Create registers a new in-progress session and counts one assessment.
func (m *Manager) Create(ctx context.Context, testTaker, subject, grade string) (Session, error) {
	e, err := m.create(testTaker, subject, grade)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m.emit(ctx, e)
	return e.s.clone(), nil
}

// Start creates a session and serves its initial item. When the pool is
// empty the session completes immediately with StopReasonPoolExhausted.
func (m *Manager) Start(ctx context.Context, testTaker, subject, grade string) (*StartResult, error) {
	e, err := m.create(testTaker, subject, grade)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &StartResult{}
	cand, err := m.selector.Initial(m.request(e.s))
	switch {
	case errors.Is(err, selector.ErrPoolExhausted):
		m.logger.Warn("no items available for session",
			zap.String("session", e.s.ID),
			zap.String("subject", e.s.Subject),
			zap.String("grade", e.s.Grade))
		final, ferr := m.finish(e, StopReasonPoolExhausted)
		if ferr != nil {
			return nil, ferr
		}
		res.Final = final
	case err != nil:
		return nil, fmt.Errorf("select initial item: %w", err)
	default:
		item := m.serve(e.s, cand.Item)
		res.Item = &item
	}
	m.emit(ctx, e)
	res.Session = e.s.clone()
	return res, nil
}

func (m *Manager) create(testTaker, subject, grade string) (*entry, error) {
	if testTaker == "" {
		return nil, fmt.Errorf("%w: empty test taker id", ErrInvalidRequest)
	}
	s := New(m.newID(), testTaker, subject, grade, m.now())
	e := &entry{s: s}

	m.mu.Lock()
	if _, dup := m.sessions[s.ID]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: duplicate session id %s", ErrInvalidRequest, s.ID)
	}
	m.sessions[s.ID] = e
	m.mu.Unlock()

	m.exposure.RecordAssessment()
	metrics.ActiveSessions.Inc()
	metrics.SessionTransitions.WithLabelValues(string(StatusInProgress), "created").Inc()
	m.logger.Debug("session created",
		zap.String("session", s.ID),
		zap.String("test_taker", testTaker))
	return e, nil
}

// SubmitResponse records a response, re-estimates ability and either
// completes the session or serves the next item. Submissions for the same
// session are serialized. A session created without Start accepts any pool
// item as its first response; after that only the served item is accepted.
func (m *Manager) SubmitResponse(ctx context.Context, id, itemID string, correct bool, latency time.Duration) (*SubmitResult, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	unserved := s.Status == StatusInProgress && s.PendingItem == ""
	if unserved && itemID != "" && !m.inPool(s, itemID) {
		metrics.ResponsesSubmitted.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: item %s is not in the %s/%s pool", ErrInvalidRequest, itemID, s.Subject, s.Grade)
	}
	if _, err := s.Submit(itemID, correct, latency, m.items, m.est, m.cfg.MLE, m.now()); err != nil {
		metrics.ResponsesSubmitted.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.ResponsesSubmitted.WithLabelValues("accepted").Inc()
	if unserved {
		m.exposure.RecordExposure(itemID)
	}

	res := &SubmitResult{
		Response: s.Responses[len(s.Responses)-1],
		Stats:    m.policy.Stats(len(s.Responses), s.Theta, s.StandardError),
		Decision: m.policy.Evaluate(len(s.Responses), s.StandardError),
	}

	if res.Decision.Stop {
		final, err := m.finish(e, string(res.Decision.Reason))
		if err != nil {
			return nil, err
		}
		res.Final = final
	} else {
		cand, err := m.selector.Next(m.request(s))
		switch {
		case errors.Is(err, selector.ErrPoolExhausted):
			final, ferr := m.finish(e, StopReasonPoolExhausted)
			if ferr != nil {
				return nil, ferr
			}
			res.Final = final
		case err != nil:
			return nil, fmt.Errorf("select next item: %w", err)
		default:
			item := m.serve(s, cand.Item)
			res.NextItem = &item
		}
	}
	m.emit(ctx, e)
	return res, nil
}

// CheckStopping evaluates the stopping policy for the session as it stands.
func (m *Manager) CheckStopping(id string) (stopping.Decision, error) {
	e, err := m.lookup(id)
	if err != nil {
		return stopping.Decision{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.policy.Evaluate(len(e.s.Responses), e.s.StandardError), nil
}

// Progress returns a copy of the session with its stats.
func (m *Manager) Progress(id string) (Progress, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.s.Responses)
	return Progress{
		Session:  e.s.clone(),
		Stats:    m.policy.Stats(n, e.s.Theta, e.s.StandardError),
		Decision: m.policy.Evaluate(n, e.s.StandardError),
	}, nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.clone(), nil
}

// Report returns the final report of a completed session.
func (m *Manager) Report(id string) (*FinalReport, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.final == nil {
		return nil, &ErrNotActive{ID: id, Status: e.s.Status}
	}
	return e.final, nil
}

// Complete forces completion of an in-progress session.
func (m *Manager) Complete(ctx context.Context, id string) (*FinalReport, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	final, err := m.finish(e, StopReasonForced)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, e)
	return final, nil
}

// Len returns the number of sessions held by the manager.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the held session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// SweepExpired expires in-progress sessions idle for longer than timeout
// and drops them, along with completed sessions finished before the same
// cutoff. It returns the ids that expired.
func (m *Manager) SweepExpired(ctx context.Context, timeout time.Duration) []string {
	m.mu.RLock()
	entries := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		entries[id] = e
	}
	m.mu.RUnlock()

	now := m.now()
	var expired, drop []string
	for id, e := range entries {
		e.mu.Lock()
		switch e.s.Status {
		case StatusInProgress:
			if now.Sub(e.s.LastActivity) > timeout {
				if err := e.s.expire(now); err == nil {
					metrics.ActiveSessions.Dec()
					metrics.SessionTransitions.WithLabelValues(string(StatusExpired), StopReasonIdle).Inc()
					m.emit(ctx, e)
					expired = append(expired, id)
					drop = append(drop, id)
				}
			}
		default:
			if now.Sub(e.s.CompletedAt) > timeout {
				drop = append(drop, id)
			}
		}
		e.mu.Unlock()
	}

	if len(drop) > 0 {
		m.mu.Lock()
		for _, id := range drop {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	if len(expired) > 0 {
		sort.Strings(expired)
		m.logger.Info("expired idle sessions", zap.Int("count", len(expired)))
	}
	return expired
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepExpired(ctx, timeout)
		}
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

func (m *Manager) request(s *Session) selector.Request {
	req := selector.Request{
		Theta:        s.Theta,
		Pool:         m.items.Pool(s.Subject, s.Grade),
		Administered: s.Administered,
		Exposure:     m.exposure,
	}
	if len(m.cfg.ContentTargets) > 0 {
		req.ContentAreas = m.items.ContentAreas()
		req.ContentTargets = m.cfg.ContentTargets
	}
	return req
}

// inPool reports whether itemID belongs to the session's subject and grade.
func (m *Manager) inPool(s *Session, itemID string) bool {
	for _, it := range m.items.Pool(s.Subject, s.Grade) {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// serve records the exposure of item and marks it pending.
func (m *Manager) serve(s *Session, item irt.ItemParameters) irt.ItemParameters {
	s.PendingItem = item.ID
	s.LastActivity = m.now()
	m.exposure.RecordExposure(item.ID)
	return item
}

// finish computes the final EAP estimate and skill diagnostics, then
// completes the session. The caller holds e.mu.
func (m *Manager) finish(e *entry, reason string) (*FinalReport, error) {
	s := e.s
	if s.Status != StatusInProgress {
		return nil, &ErrNotActive{ID: s.ID, Status: s.Status}
	}
	history := s.Observations()
	final, err := m.est.EAP(history, m.items, m.cfg.EAP)
	if err != nil {
		return nil, fmt.Errorf("final estimate: %w", err)
	}
	report, err := m.analyzer.Diagnose(history, m.skillsFor(s), m.items, final.Theta)
	if err != nil {
		return nil, fmt.Errorf("skill diagnostics: %w", err)
	}
	if err := s.complete(reason, m.now()); err != nil {
		return nil, err
	}
	s.FinalTheta = final.Theta
	s.FinalSE = final.StandardError

	metrics.ActiveSessions.Dec()
	metrics.SessionTransitions.WithLabelValues(string(StatusCompleted), reason).Inc()
	m.logger.Info("session completed",
		zap.String("session", s.ID),
		zap.String("reason", reason),
		zap.Int("items", len(s.Responses)),
		zap.Float64("theta", final.Theta),
		zap.Float64("standard_error", final.StandardError))

	e.final = &FinalReport{
		Snapshot:      snapshotOf(s),
		Stats:         m.policy.Stats(len(s.Responses), final.Theta, final.StandardError),
		Theta:         final.Theta,
		StandardError: final.StandardError,
		Diagnostics:   report,
	}
	return e.final, nil
}

// skillsFor restricts the skill map to the session's item pool.
func (m *Manager) skillsFor(s *Session) map[string]string {
	all := m.items.SkillMap()
	out := make(map[string]string)
	for _, it := range m.items.Pool(s.Subject, s.Grade) {
		if skill, ok := all[it.ID]; ok {
			out[it.ID] = skill
		}
	}
	return out
}

// emit hands the session's snapshot to the sink. The caller holds e.mu, so
// sinks that do I/O should be wrapped in a SnapshotQueue.
func (m *Manager) emit(ctx context.Context, e *entry) {
	if m.sink == nil {
		return
	}
	e.seq++
	snap := snapshotOf(e.s)
	snap.Seq = e.seq
	if err := m.sink.SaveSession(ctx, snap); err != nil {
		metrics.SnapshotWrites.WithLabelValues("failed").Inc()
		m.logger.Warn("session snapshot not saved",
			zap.String("session", e.s.ID),
			zap.Error(err))
		return
	}
	metrics.SnapshotWrites.WithLabelValues("saved").Inc()
}
