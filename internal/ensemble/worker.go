package ensemble

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/stability"
)

// Snapshot is one turn's stability reading, persisted off the turn path.
type Snapshot struct {
	SessionID  string
	UserID     string
	Turn       int
	Pattern    pattern.Pattern
	Confidence float64
	Stability  stability.Metrics
	Method     Method
	Timestamp  time.Time
}

// SnapshotSink stores snapshots.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
}

// DefaultQueueSize is the snapshot backlog kept before new posts are dropped.
const DefaultQueueSize = 64

// Worker drains posted snapshots into a sink on its own goroutine. Posting
// never blocks; when the queue is full the snapshot is dropped.
type Worker struct {
	sink    SnapshotSink
	pending chan Snapshot
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWorker starts the drain loop. Close must be called to stop it.
func NewWorker(sink SnapshotSink, queueSize int, log *zap.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		sink:    sink,
		pending: make(chan Snapshot, queueSize),
		log:     log,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go w.processLoop()
	return w
}

// Post queues s and reports whether it was accepted. Posts after Close
// are dropped.
func (w *Worker) Post(s Snapshot) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.pending <- s:
		return true
	default:
		w.log.Debug("snapshot queue full, dropping", zap.String("session", s.SessionID), zap.Int("turn", s.Turn))
		return false
	}
}

func (w *Worker) processLoop() {
	defer close(w.done)
	for s := range w.pending {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.sink.SaveSnapshot(ctx, s); err != nil {
			w.log.Warn("save stability snapshot",
				zap.String("session", s.SessionID),
				zap.Int("turn", s.Turn),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting snapshots and waits for the queue to drain.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.pending)
	}
	w.mu.Unlock()
	<-w.done
}
