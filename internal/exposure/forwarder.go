package exposure

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/metrics"
)

// Sink is the external exposure store.
type Sink interface {
	IncrementExposure(ctx context.Context, itemID string) error
	IncrementAssessments(ctx context.Context) error
}

// ErrForwarderClosed is returned by Close when called twice.
var ErrForwarderClosed = errors.New("exposure forwarder closed")

// RetryConfig configures redelivery of failed increments.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	Buffer  int           `yaml:"buffer"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// DefaultForwarderConfig returns sensible defaults.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		Buffer:  1024,
		Timeout: 5 * time.Second,
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 100 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Multiplier:  2.0,
		},
	}
}

type event struct {
	itemID string // empty for an assessment start
}

// Forwarder delivers increments to a Sink from a single background worker.
// Enqueueing never blocks: an increment that finds the buffer full is
// dropped and counted. Failed deliveries are retried with exponential
// backoff, so a notification may be delivered more than once.
type Forwarder struct {
	sink   Sink
	cfg    ForwarderConfig
	logger *zap.Logger

	events chan event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewForwarder starts the delivery worker.
func NewForwarder(sink Sink, cfg ForwarderConfig, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultForwarderConfig().Buffer
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	f := &Forwarder{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		events: make(chan event, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// Exposed queues an exposure increment for itemID.
func (f *Forwarder) Exposed(itemID string) {
	f.enqueue(event{itemID: itemID})
}

// AssessmentStarted queues an assessment-total increment.
func (f *Forwarder) AssessmentStarted() {
	f.enqueue(event{})
}

func (f *Forwarder) enqueue(ev event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		metrics.ExposureDeliveries.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case f.events <- ev:
	default:
		metrics.ExposureDeliveries.WithLabelValues("dropped").Inc()
		f.logger.Warn("exposure buffer full, dropping increment",
			zap.String("item_id", ev.itemID),
			zap.Int("buffer", cap(f.events)))
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrForwarderClosed
	}
	f.closed = true
	close(f.events)
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for ev := range f.events {
		f.deliver(ev)
	}
}

func (f *Forwarder) deliver(ev event) {
	var err error
	for attempt := range f.cfg.Retry.MaxAttempts {
		err = f.send(ev)
		if err == nil {
			metrics.ExposureDeliveries.WithLabelValues("ok").Inc()
			return
		}
		if attempt == f.cfg.Retry.MaxAttempts-1 {
			break
		}
		time.Sleep(f.backoff(attempt))
	}
	metrics.ExposureDeliveries.WithLabelValues("failed").Inc()
	f.logger.Error("exposure delivery failed",
		zap.String("item_id", ev.itemID),
		zap.Int("attempts", f.cfg.Retry.MaxAttempts),
		zap.Error(err))
}

func (f *Forwarder) send(ev event) error {
	ctx := context.Background()
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}
	if ev.itemID == "" {
		return f.sink.IncrementAssessments(ctx)
	}
	return f.sink.IncrementExposure(ctx, ev.itemID)
}

// backoff returns the wait before the next attempt with ±20% jitter.
func (f *Forwarder) backoff(attempt int) time.Duration {
	rc := f.cfg.Retry
	mult := rc.Multiplier
	if mult <= 0 {
		mult = 2
	}
	wait := float64(rc.InitialWait) * math.Pow(mult, float64(attempt))
	if rc.MaxWait > 0 && wait > float64(rc.MaxWait) {
		wait = float64(rc.MaxWait)
	}
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(wait + jitter)
}
