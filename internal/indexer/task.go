package indexer

import (
	"context"
	"sync/atomic"

	"github.com/dshills/docindex-mcp/internal/metrics"
)

const progressBuffer = 64

// Task is a run executing on its own goroutine
type Task struct {
	progress chan Progress
	done     chan struct{}
	phase    atomic.Int32

	ctx   context.Context
	stats *Stats
	err   error
}

// Start launches a run over root in the background. It fails immediately
// with ErrIndexingInProgress when another run holds the indexer. The caller
// must drain Progress or call Wait, since events are not dropped while ctx
// is live.
func (idx *Indexer) Start(ctx context.Context, root Root, exts []string) (*Task, error) {
	if !idx.lock.TryAcquire() {
		idx.metrics.ObserveRun(metrics.RunRejected, 0)
		return nil, ErrIndexingInProgress
	}

	t := &Task{
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
		ctx:      ctx,
	}
	go func() {
		defer close(t.done)
		defer close(t.progress)
		defer idx.lock.Release()
		t.stats, t.err = idx.run(ctx, root, exts, t.send)
	}()
	return t, nil
}

// Running reports whether a run currently holds the indexer
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

func (t *Task) send(p Progress) {
	t.phase.Store(int32(p.Phase))
	select {
	case t.progress <- p:
	case <-t.ctx.Done():
	}
}

// Progress yields pipeline events; the channel is closed when the run ends
func (t *Task) Progress() <-chan Progress {
	return t.progress
}

// Phase returns the phase of the most recent event
func (t *Task) Phase() Phase {
	return Phase(t.phase.Load())
}

// Done is closed once the run has finished
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait discards unread events, blocks until the run ends and returns its result
func (t *Task) Wait() (*Stats, error) {
	for range t.progress {
	}
	<-t.done
	return t.stats, t.err
}
