package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/adaptiq/internal/metrics"
)

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = errors.New("snapshot queue closed")

// SnapshotQueue is a SnapshotSink that writes to another sink from a single
// background worker. SaveSession never waits on the wrapped sink. Snapshots
// of a session that are still waiting are replaced by newer ones, so only
// the highest Seq per session is written.
type SnapshotQueue struct {
	sink    SnapshotSink
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]Snapshot
	order   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewSnapshotQueue starts the writer. A positive timeout bounds each write.
func NewSnapshotQueue(sink SnapshotSink, timeout time.Duration, logger *zap.Logger) *SnapshotQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &SnapshotQueue{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]Snapshot),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// SaveSession implements SnapshotSink.
func (q *SnapshotQueue) SaveSession(_ context.Context, snap Snapshot) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if prev, ok := q.pending[snap.SessionID]; ok {
		metrics.SnapshotFlushes.WithLabelValues("superseded").Inc()
		if prev.Seq > snap.Seq {
			q.mu.Unlock()
			return nil
		}
	} else {
		q.order = append(q.order, snap.SessionID)
	}
	q.pending[snap.SessionID] = snap
	q.mu.Unlock()

	q.signal()
	return nil
}

// Close stops accepting snapshots and waits until the waiting ones are
// written or ctx ends.
func (q *SnapshotQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SnapshotQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SnapshotQueue) run() {
	defer close(q.done)
	for {
		batch, closed := q.take()
		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.wake
			continue
		}
		for _, snap := range batch {
			q.write(snap)
		}
	}
}

// take removes every waiting snapshot in arrival order.
func (q *SnapshotQueue) take() ([]Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := make([]Snapshot, 0, len(q.order))
	for _, id := range q.order {
		batch = append(batch, q.pending[id])
	}
	q.order = q.order[:0]
	clear(q.pending)
	return batch, q.closed
}

func (q *SnapshotQueue) write(snap Snapshot) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	if err := q.sink.SaveSession(ctx, snap); err != nil {
		metrics.SnapshotFlushes.WithLabelValues("failed").Inc()
		q.logger.Warn("session snapshot write failed",
			zap.String("session", snap.SessionID),
			zap.Uint64("seq", snap.Seq),
			zap.Error(err))
		return
	}
	metrics.SnapshotFlushes.WithLabelValues("written").Inc()
}
