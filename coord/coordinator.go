package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avernar/ckpt/retry"
)

// ErrSuspendTimeout is returned when the worker doesn't acknowledge a suspend request in
// time. The caller must treat it as failure of the structural change it was preparing.
var ErrSuspendTimeout = errors.New("suspend handshake timed out")

// State of the coordinator's commit gate.
type State int32

const (
	// Committing means the worker is allowed to commit offsets.
	Committing State = iota
	// SuspendRequested means a suspend request was sent and no ack has been observed yet.
	SuspendRequested
	// Suspended means the worker acknowledged that commit activity has stopped.
	Suspended
)

func (s State) String() string {
	switch s {
	case Committing:
		return "committing"
	case SuspendRequested:
		return "suspend requested"
	case Suspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sender delivers events to the peer endpoint. The transport must deliver events from one
// sender to one receiver in send order.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// Coordinator is the split-assigning side of the commit coordination protocol.
//
// Methods are safe for concurrent use, but only one suspend handshake runs at a time.
type Coordinator struct {
	send    Sender
	timeout time.Duration
	retry   retry.Policy

	mu    sync.Mutex
	state State
	acked chan struct{}
}

type CoordinatorOption = func(*Coordinator)

// WithAckTimeout bounds the wait for the worker's acknowledgement per attempt.
func WithAckTimeout(timeout time.Duration) CoordinatorOption {
	if timeout <= 0 {
		panic("timeout can't be <= 0")
	}
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithRetry sets the policy for re-sending the suspend request after a timeout.
func WithRetry(policy retry.Policy) CoordinatorOption {
	if policy == nil {
		panic("policy can't be nil")
	}
	return func(c *Coordinator) {
		c.retry = policy
	}
}

func NewCoordinator(send Sender, options ...CoordinatorOption) *Coordinator {
	if send == nil {
		panic("sender can't be nil")
	}

	c := &Coordinator{
		send:    send,
		timeout: 30 * time.Second,
		retry:   retry.Immediate(1),
		state:   Committing,
		acked:   make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(c)
	}

	return c
}

// SuspendCommits asks the worker to stop committing offsets and blocks until the worker
// acknowledges, the per-attempt timeout elapses with no retry attempts left, or ctx is
// cancelled. Having sent the request is not enough: the structural change may only proceed
// after this method returns nil.
//
// Calling it while already suspended is a no-op.
func (c *Coordinator) SuspendCommits(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Suspended {
		c.mu.Unlock()
		return nil
	}
	c.state = SuspendRequested
	// Drop a stale ack from an earlier handshake, so this wait only observes acks for
	// the outstanding request.
	select {
	case <-c.acked:
	default:
	}
	c.mu.Unlock()

	var lastErr error
	policy := c.retry.Derive()
	for policy.Attempt(ctx) {
		if err := c.send.Send(ctx, OffsetCommitRequest{ShouldCommit: false}); err != nil {
			lastErr = fmt.Errorf("send suspend request: %w", err)
			continue
		}

		select {
		case <-c.acked:
			c.mu.Lock()
			c.state = Suspended
			c.mu.Unlock()
			return nil
		case <-time.After(c.timeout):
			lastErr = ErrSuspendTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if lastErr == nil {
		lastErr = ErrSuspendTimeout
	}
	return fmt.Errorf("suspend commits: %w", lastErr)
}

// ResumeCommits tells the worker to resume committing offsets. Resume is fire-and-forget:
// no acknowledgement exists for this direction and none is waited for.
func (c *Coordinator) ResumeCommits(ctx context.Context) error {
	c.mu.Lock()
	c.state = Committing
	c.mu.Unlock()

	return c.send.Send(ctx, OffsetCommitRequest{ShouldCommit: true})
}

// HandleAck records the worker's acknowledgement. The ack is a level signal: duplicates
// collapse and the waiting handshake observes at least one.
func (c *Coordinator) HandleAck() {
	select {
	case c.acked <- struct{}{}:
	default:
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
