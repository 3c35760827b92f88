package runstore

import (
	"context"
	"sync"
	"time"

	"agentcore/pkg/logx"
)

const defaultBuffer = 64

// Worker drains fire-and-forget persistence requests into a Sink on its
// own goroutine. Enqueue never blocks the caller: when the buffer is full
// the batch is dropped with a warning, since losing a turn record must
// never stall a run.
type Worker struct {
	sink    Sink
	logger  *logx.Logger
	ch      chan []Turn
	done    chan struct{}
	stop    sync.Once
	timeout time.Duration
}

// NewWorker starts a worker over the sink. A nil logger gets a default.
func NewWorker(sink Sink, logger *logx.Logger) *Worker {
	if logger == nil {
		logger = logx.NewLogger("runstore")
	}
	w := &Worker{
		sink:    sink,
		logger:  logger,
		ch:      make(chan []Turn, defaultBuffer),
		done:    make(chan struct{}),
		timeout: 10 * time.Second,
	}
	go w.run()
	return w
}

// Enqueue hands a finished run's turns to the worker.
func (w *Worker) Enqueue(turns []Turn) {
	if len(turns) == 0 {
		return
	}
	select {
	case w.ch <- turns:
	default:
		w.logger.Warn("persistence buffer full, dropping %d turns of run %s",
			len(turns), turns[0].RunID)
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for turns := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.sink.AppendTurns(ctx, turns); err != nil {
			w.logger.Error("failed to persist %d turns of run %s: %v",
				len(turns), turns[0].RunID, err)
		}
		cancel()
	}
}

// Close drains pending batches and stops the worker. The sink itself is
// not closed; it belongs to the caller.
func (w *Worker) Close() {
	w.stop.Do(func() {
		close(w.ch)
		<-w.done
	})
}
