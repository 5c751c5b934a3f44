package coord_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/avernar/ckpt/coord"
	"github.com/avernar/ckpt/internal/testing/require"
	"github.com/avernar/ckpt/retry"
)

func run(t *testing.T, name string, fn func(t *testing.T)) {
	t.Run(name, func(t *testing.T) {
		t.Helper()
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			fn(t)
		})
	})
}

type senderFunc func(ctx context.Context, e coord.Event) error

func (f senderFunc) Send(ctx context.Context, e coord.Event) error { return f(ctx, e) }

// dropSender swallows every event, simulating a worker that never answers.
var dropSender = senderFunc(func(ctx context.Context, e coord.Event) error { return nil })

func noCommit(ctx context.Context) error { return nil }

func TestHandshake(t *testing.T) {
	run(t, "Suspend and resume", func(t *testing.T) {
		var c *coord.Coordinator
		w := coord.NewWorker(
			senderFunc(func(ctx context.Context, e coord.Event) error {
				c.HandleAck()
				return nil
			}),
			noCommit,
		)
		c = coord.NewCoordinator(senderFunc(func(ctx context.Context, e coord.Event) error {
			return w.HandleRequest(ctx, e.(coord.OffsetCommitRequest))
		}))

		require.Equal(t, c.State(), coord.Committing)
		require.True(t, w.CommitAllowed())

		require.Nil(t, c.SuspendCommits(t.Context()))
		require.Equal(t, c.State(), coord.Suspended)
		require.False(t, w.CommitAllowed())

		require.Nil(t, c.ResumeCommits(t.Context()))
		require.Equal(t, c.State(), coord.Committing)
		require.True(t, w.CommitAllowed())
	})

	run(t, "Suspend while suspended is a no-op", func(t *testing.T) {
		var sent atomic.Int32
		var c *coord.Coordinator
		w := coord.NewWorker(
			senderFunc(func(ctx context.Context, e coord.Event) error {
				c.HandleAck()
				return nil
			}),
			noCommit,
		)
		c = coord.NewCoordinator(senderFunc(func(ctx context.Context, e coord.Event) error {
			sent.Add(1)
			return w.HandleRequest(ctx, e.(coord.OffsetCommitRequest))
		}))

		require.Nil(t, c.SuspendCommits(t.Context()))
		require.Nil(t, c.SuspendCommits(t.Context()))
		require.Equal(t, sent.Load(), int32(1))
	})

	run(t, "Duplicate suspend requests each produce an ack", func(t *testing.T) {
		var acks atomic.Int32
		w := coord.NewWorker(
			senderFunc(func(ctx context.Context, e coord.Event) error {
				acks.Add(1)
				return nil
			}),
			noCommit,
		)

		suspend := coord.OffsetCommitRequest{ShouldCommit: false}
		require.Nil(t, w.HandleRequest(t.Context(), suspend))
		require.Nil(t, w.HandleRequest(t.Context(), suspend))
		require.Equal(t, acks.Load(), int32(2))
		require.False(t, w.CommitAllowed())
	})

	run(t, "Stale acks are ignored", func(t *testing.T) {
		c := coord.NewCoordinator(dropSender, coord.WithAckTimeout(time.Second))
		c.HandleAck()
		c.HandleAck()

		// Acks from before the request went out must not satisfy the handshake.
		require.ErrorIs(t, c.SuspendCommits(t.Context()), coord.ErrSuspendTimeout)
	})
}

func TestSuspendTimeout(t *testing.T) {
	run(t, "No ack", func(t *testing.T) {
		c := coord.NewCoordinator(dropSender,
			coord.WithAckTimeout(time.Second),
			coord.WithRetry(retry.Immediate(2)),
		)

		start := time.Now()
		err := c.SuspendCommits(t.Context())
		require.ErrorIs(t, err, coord.ErrSuspendTimeout)
		require.Equal(t, time.Since(start), 2*time.Second)
		require.Equal(t, c.State(), coord.SuspendRequested)
	})

	run(t, "Ack on retry", func(t *testing.T) {
		var c *coord.Coordinator
		var sent atomic.Int32
		c = coord.NewCoordinator(
			senderFunc(func(ctx context.Context, e coord.Event) error {
				if sent.Add(1) > 1 {
					c.HandleAck()
				}
				return nil
			}),
			coord.WithAckTimeout(time.Second),
			coord.WithRetry(retry.Immediate(3)),
		)

		start := time.Now()
		require.Nil(t, c.SuspendCommits(t.Context()))
		require.Equal(t, time.Since(start), time.Second)
		require.Equal(t, c.State(), coord.Suspended)
		require.Equal(t, sent.Load(), int32(2))
	})

	run(t, "Send failure is retried", func(t *testing.T) {
		var c *coord.Coordinator
		var sent atomic.Int32
		c = coord.NewCoordinator(
			senderFunc(func(ctx context.Context, e coord.Event) error {
				if sent.Add(1) == 1 {
					return errors.New("broken pipe")
				}
				c.HandleAck()
				return nil
			}),
			coord.WithAckTimeout(time.Second),
			coord.WithRetry(retry.Immediate(2)),
		)

		require.Nil(t, c.SuspendCommits(t.Context()))
		require.Equal(t, sent.Load(), int32(2))
	})

	run(t, "Context cancelled mid-wait", func(t *testing.T) {
		c := coord.NewCoordinator(dropSender,
			coord.WithAckTimeout(time.Minute),
			coord.WithRetry(retry.Immediate(0)),
		)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		err := c.SuspendCommits(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWorkerLoop(t *testing.T) {
	run(t, "Commits on interval", func(t *testing.T) {
		var commits atomic.Int32
		w := coord.NewWorker(dropSender,
			func(ctx context.Context) error {
				commits.Add(1)
				return nil
			},
			coord.WithCommitInterval(100*time.Millisecond),
		)

		w.Start()
		time.Sleep(350 * time.Millisecond)
		require.Equal(t, commits.Load(), int32(3))
		require.Nil(t, w.Close())
	})

	run(t, "Suspension applies from the next tick", func(t *testing.T) {
		var commits atomic.Int32
		w := coord.NewWorker(dropSender,
			func(ctx context.Context) error {
				commits.Add(1)
				return nil
			},
			coord.WithCommitInterval(100*time.Millisecond),
		)

		w.Start()
		time.Sleep(250 * time.Millisecond)
		require.Equal(t, commits.Load(), int32(2))

		require.Nil(t, w.HandleRequest(t.Context(), coord.OffsetCommitRequest{ShouldCommit: false}))
		time.Sleep(500 * time.Millisecond)
		require.Equal(t, commits.Load(), int32(2))

		require.Nil(t, w.HandleRequest(t.Context(), coord.OffsetCommitRequest{ShouldCommit: true}))
		time.Sleep(200 * time.Millisecond)
		require.Equal(t, commits.Load(), int32(4))

		require.Nil(t, w.Close())
	})

	run(t, "Commit error stops the loop", func(t *testing.T) {
		boom := errors.New("boom")
		w := coord.NewWorker(dropSender,
			func(ctx context.Context) error { return boom },
			coord.WithCommitInterval(100*time.Millisecond),
		)

		w.Start()
		time.Sleep(150 * time.Millisecond)
		require.ErrorIs(t, w.Close(), boom)
	})
}

func TestOptions(t *testing.T) {
	run(t, "Invalid arguments", func(t *testing.T) {
		require.PanicWithError(t, "sender can't be nil", func() {
			_ = coord.NewCoordinator(nil)
		})
		require.PanicWithError(t, "commit can't be nil", func() {
			_ = coord.NewWorker(dropSender, nil)
		})
		require.PanicWithError(t, "timeout can't be <= 0", func() {
			_ = coord.WithAckTimeout(0)
		})
		require.PanicWithError(t, "policy can't be nil", func() {
			_ = coord.WithRetry(nil)
		})
		require.PanicWithError(t, "interval can't be <= 0", func() {
			_ = coord.WithCommitInterval(0)
		})
	})
}

func TestEventCodec(t *testing.T) {
	for _, e := range []coord.Event{
		coord.OffsetCommitRequest{ShouldCommit: false},
		coord.OffsetCommitRequest{ShouldCommit: true},
		coord.OffsetCommitAck{},
	} {
		b, err := coord.Marshal(e)
		require.Nil(t, err)

		decoded, err := coord.Unmarshal(b)
		require.Nil(t, err)
		require.Equal(t, decoded, e)
	}

	_, err := coord.Unmarshal(nil)
	require.NotNil(t, err)

	_, err = coord.Unmarshal([]byte{0xFF})
	require.NotNil(t, err)

	_, err = coord.Unmarshal([]byte{0x01})
	require.NotNil(t, err)
}
