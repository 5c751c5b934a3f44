// Package ckpt persists checkpointed values in SQLite together with a snapshot of the
// codec that wrote them, and decides on restore whether the persisted format is still
// readable by the current codec: directly, after a migration, or not at all.
package ckpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
	"github.com/avernar/ckpt/internal/sqlite"
)

var (
	// ErrNotFound is returned by Restore when no checkpoint exists under the name.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrIncompatible is returned when the persisted codec snapshot can't be resolved
	// against the current codec. Distinct from corruption: the bytes are intact but the
	// format moved on without a migration path. Typically fatal for that piece of state,
	// not for the process.
	ErrIncompatible = errors.New("incompatible checkpoint")
)

// Store persists values of type T.
//
// Store methods are safe for concurrent use; operations that touch the codec are
// serialized because codecs carry private scratch state.
type Store[T any] struct {
	cfg     *config[T]
	storage *sqlite.Storage
	metrics *metrics

	mu    sync.Mutex
	codec codec.Codec[T]
}

func New[T any](c codec.Codec[T], options ...Option[T]) (*Store[T], error) {
	if c == nil {
		panic("codec can't be nil")
	}

	cfg := newConfig(options...)
	storage, err := sqlite.New(
		sqlite.WithURI(cfg.file.uri()),
		sqlite.WithWorkers(cfg.workers),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	store := Store[T]{
		cfg:     cfg,
		storage: storage,
		metrics: cfg.metrics,
		// The store keeps a private instance, so that the caller can go on using theirs.
		codec: c.Derive(),
	}

	return &store, nil
}

// Save encodes v with the store's codec and persists it under name together with the
// codec's snapshot. It returns the new checkpoint's ID.
func (s *Store[T]) Save(ctx context.Context, name string, v T) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name can't be blank")
	}

	start := time.Now()

	s.mu.Lock()
	var (
		snapBuf  bytes.Buffer
		stateBuf bytes.Buffer
	)
	err := codec.WriteSnapshot(binio.NewWriter(&snapBuf), s.codec.Snapshot())
	if err == nil {
		err = s.codec.Encode(v, binio.NewWriter(&stateBuf))
	}
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	state := stateBuf.Bytes()
	if s.cfg.compress {
		state = s2.Encode(nil, state)
	}

	cp := sqlite.Checkpoint{
		ID:        uuid.NewString(),
		Name:      name,
		Snapshot:  snapBuf.Bytes(),
		State:     state,
		CreatedAt: time.Now(),
	}
	if err := s.storage.Put(ctx, cp); err != nil {
		return "", fmt.Errorf("store checkpoint: %w", err)
	}

	if s.cfg.keep > 0 {
		if err := s.storage.Prune(ctx, name, s.cfg.keep); err != nil {
			return "", fmt.Errorf("prune checkpoints: %w", err)
		}
	}

	s.metrics.saves.Inc()
	s.metrics.saveDuration.Observe(time.Since(start).Seconds())

	return cp.ID, nil
}

// Restore reads the most recent checkpoint stored under name.
//
// The persisted codec snapshot is resolved against the current codec first. Depending on
// the outcome the state is decoded directly, migrated (decoded with a codec restored from
// the persisted snapshot, re-encoded with the current codec and written back), or rejected
// with [ErrIncompatible].
func (s *Store[T]) Restore(ctx context.Context, name string) (T, error) {
	var zero T

	start := time.Now()

	cp, err := s.storage.Latest(ctx, name)
	if errors.Is(err, sqlite.ErrNotFound) {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		s.metrics.restoreError("storage")
		return zero, fmt.Errorf("load checkpoint: %w", err)
	}

	state := cp.State
	if s.cfg.compress {
		state, err = s2.Decode(nil, state)
		if err != nil {
			s.metrics.restoreError("corrupt")
			return zero, fmt.Errorf("%w: decompress checkpoint: %w", codec.ErrCorrupt, err)
		}
	}

	persisted, err := codec.ReadSnapshot(binio.NewReader(bytes.NewReader(cp.Snapshot)), s.cfg.registry)
	if err != nil {
		s.metrics.restoreError("corrupt")
		return zero, fmt.Errorf("read checkpoint snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	compat := persisted.Resolve(s.codec.Snapshot())
	switch {
	case compat.IsIncompatible():
		s.metrics.restoreError("incompatible")
		return zero, fmt.Errorf("%w: %s", ErrIncompatible, compat.Reason())

	case compat.RequiresMigration():
		v, err := s.migrate(ctx, cp, persisted, state)
		if err != nil {
			return zero, err
		}
		s.metrics.restores.Inc()
		s.metrics.restoreDuration.Observe(time.Since(start).Seconds())
		return v, nil

	default:
		v, err := s.codec.Decode(binio.NewReader(bytes.NewReader(state)))
		if err != nil {
			s.metrics.restoreError("corrupt")
			return zero, fmt.Errorf("decode checkpoint: %w", err)
		}
		s.metrics.restores.Inc()
		s.metrics.restoreDuration.Observe(time.Since(start).Seconds())
		return v, nil
	}
}

// Resolve reports how the most recent checkpoint under name relates to the current codec
// without decoding any state. Useful as a startup probe.
func (s *Store[T]) Resolve(ctx context.Context, name string) (codec.Compatibility, error) {
	cp, err := s.storage.Latest(ctx, name)
	if errors.Is(err, sqlite.ErrNotFound) {
		return codec.Compatibility{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return codec.Compatibility{}, fmt.Errorf("load checkpoint: %w", err)
	}

	persisted, err := codec.ReadSnapshot(binio.NewReader(bytes.NewReader(cp.Snapshot)), s.cfg.registry)
	if err != nil {
		return codec.Compatibility{}, fmt.Errorf("read checkpoint snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return persisted.Resolve(s.codec.Snapshot()), nil
}

// Close closes the underlying SQLite database.
func (s *Store[T]) Close() error {
	return s.storage.Close()
}

// migrate decodes state with a codec restored from the persisted snapshot, re-encodes it
// with the current codec and replaces the stored checkpoint, so that the next restore
// reads directly. Called with s.mu held.
func (s *Store[T]) migrate(ctx context.Context, cp *sqlite.Checkpoint, persisted codec.Snapshot, state []byte) (T, error) {
	var zero T

	old, err := codec.RestoreAs[T](persisted)
	if err != nil {
		s.metrics.restoreError("incompatible")
		return zero, fmt.Errorf("%w: %w", ErrIncompatible, err)
	}

	v, err := old.Decode(binio.NewReader(bytes.NewReader(state)))
	if err != nil {
		s.metrics.restoreError("corrupt")
		return zero, fmt.Errorf("decode checkpoint with restored codec: %w", err)
	}

	var (
		snapBuf  bytes.Buffer
		stateBuf bytes.Buffer
	)
	if err := codec.WriteSnapshot(binio.NewWriter(&snapBuf), s.codec.Snapshot()); err != nil {
		return zero, fmt.Errorf("re-encode checkpoint snapshot: %w", err)
	}
	if err := s.codec.Encode(v, binio.NewWriter(&stateBuf)); err != nil {
		return zero, fmt.Errorf("re-encode checkpoint: %w", err)
	}

	newState := stateBuf.Bytes()
	if s.cfg.compress {
		newState = s2.Encode(nil, newState)
	}

	if err := s.storage.Replace(ctx, sqlite.Checkpoint{
		ID:       cp.ID,
		Snapshot: snapBuf.Bytes(),
		State:    newState,
	}); err != nil {
		return zero, fmt.Errorf("write back migrated checkpoint: %w", err)
	}

	s.metrics.migrations.Inc()
	return v, nil
}
