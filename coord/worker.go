package coord

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CommitFunc commits the worker's current offsets.
type CommitFunc = func(ctx context.Context) error

// Worker is the stream-reading side of the commit coordination protocol. It owns a
// periodic offset-commit loop gated by the coordinator's requests.
//
// A commit already in flight when a suspend request arrives finishes; suspension applies
// from the next tick.
type Worker struct {
	send       Sender
	commit     CommitFunc
	interval   time.Duration
	committing atomic.Bool

	ctx   context.Context
	stop  func()
	group *errgroup.Group
}

type WorkerOption = func(*Worker)

// WithCommitInterval sets the period of the offset-commit loop.
func WithCommitInterval(interval time.Duration) WorkerOption {
	if interval <= 0 {
		panic("interval can't be <= 0")
	}
	return func(w *Worker) {
		w.interval = interval
	}
}

func NewWorker(send Sender, commit CommitFunc, options ...WorkerOption) *Worker {
	if send == nil {
		panic("sender can't be nil")
	}
	if commit == nil {
		panic("commit can't be nil")
	}

	ctx, stop := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	w := &Worker{
		send:     send,
		commit:   commit,
		interval: time.Second,
		ctx:      ctx,
		stop:     stop,
		group:    group,
	}
	for _, opt := range options {
		opt(w)
	}
	w.committing.Store(true)

	return w
}

// HandleRequest applies a coordinator request. A suspend request is acknowledged even when
// commits are already stopped: "I have stopped" is a level, not an edge, so duplicate
// requests produce duplicate acks and the coordinator collapses them.
func (w *Worker) HandleRequest(ctx context.Context, req OffsetCommitRequest) error {
	if req.ShouldCommit {
		w.committing.Store(true)
		return nil
	}

	w.committing.Store(false)
	if err := w.send.Send(ctx, OffsetCommitAck{}); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}
	return nil
}

// CommitAllowed reports whether offset commits are currently allowed.
func (w *Worker) CommitAllowed() bool {
	return w.committing.Load()
}

// Start launches the periodic commit loop.
func (w *Worker) Start() {
	w.group.Go(w.commitLoop)
}

func (w *Worker) commitLoop() error {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-tick.C:
			if !w.committing.Load() {
				continue
			}
			if err := w.commit(w.ctx); err != nil {
				return fmt.Errorf("commit offsets: %w", err)
			}
		}
	}
}

// Close stops the commit loop and waits for it to finish.
func (w *Worker) Close() error {
	w.stop()
	if err := w.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
