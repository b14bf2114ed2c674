package trace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sertdev/msgproxy/internal/store"
)

// Sink receives batches of finished traces. *store.Store satisfies it.
type Sink interface {
	InsertTraceBatch(ctx context.Context, traces []*store.Trace) error
}

// Recorder buffers traces and writes them in batches off the request path.
// When the buffer is full the trace is dropped and counted; recording never
// blocks a request.
type Recorder struct {
	ch      chan *store.Trace
	sink    Sink
	wg      sync.WaitGroup
	done    chan struct{}
	dropped atomic.Int64

	droppedCounter prometheus.Counter
}

const (
	batchSize     = 100
	flushInterval = 500 * time.Millisecond
)

func NewRecorder(sink Sink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	r := &Recorder{
		ch:   make(chan *store.Trace, bufferSize),
		sink: sink,
		done: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// SetDroppedCounter mirrors the drop count into a Prometheus counter. Call
// before the recorder starts receiving traffic.
func (r *Recorder) SetDroppedCounter(c prometheus.Counter) {
	r.droppedCounter = c
}

// Record enqueues a trace. Non-blocking.
func (r *Recorder) Record(tr *store.Trace) {
	select {
	case r.ch <- tr:
	default:
		r.dropped.Add(1)
		if r.droppedCounter != nil {
			r.droppedCounter.Inc()
		}
	}
}

// Dropped returns how many traces were lost to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]*store.Trace, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.sink.InsertTraceBatch(ctx, batch); err != nil {
			slog.Error("trace recorder: batch insert failed", "error", err, "batch_size", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case tr := <-r.ch:
			batch = append(batch, tr)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case tr := <-r.ch:
					batch = append(batch, tr)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
