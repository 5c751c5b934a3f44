package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrClosed is returned by Storage methods when the storage has been closed.
	ErrClosed = errors.New("storage is closed")
	// ErrNotFound is returned when no checkpoint exists under the requested name.
	ErrNotFound = errors.New("checkpoint not found")
)

const memory = ":memory:"

// Storage is persistent checkpoint storage backed by SQLite.
type Storage struct {
	cfg *Config
	db  *sql.DB
}

// New creates a new Storage with the provided configuration functions.
//
// Default configuration:
//   - URI: ":memory:" (in-memory database)
//   - Workers: 1
//
// Returns an error if the SQLite database cannot be opened or initialized.
func New(configFuncs ...ConfigFunc) (*Storage, error) {
	cfg := &Config{
		uri:     memory,
		workers: 1,
	}
	for _, cf := range configFuncs {
		cf(cfg)
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := setup(db); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	storage := Storage{
		cfg: cfg,
		db:  db,
	}

	return &storage, nil
}

// Checkpoint is one persisted state blob together with the snapshot of the codec that
// wrote it.
type Checkpoint struct {
	// ID is the unique identifier of this checkpoint.
	ID string
	// Name groups checkpoints of the same piece of state.
	Name string
	// Snapshot is the persisted codec snapshot tree.
	Snapshot []byte
	// State is the encoded (possibly compressed) state.
	State []byte
	// CreatedAt is the time when the checkpoint was taken.
	CreatedAt time.Time
}

// Put inserts a new checkpoint.
//
// Returns [ErrClosed] if the storage has been closed.
func (s *Storage) Put(ctx context.Context, cp Checkpoint) error {
	_, err := s.db.ExecContext(
		ctx,
		`
		insert into checkpoint (
			id,
			name,
			snapshot,
			state,
			created_at
		) values (
			:id,
			:name,
			:snapshot,
			:state,
			:created_at
		)
		`,
		sql.Named("id", cp.ID),
		sql.Named("name", cp.Name),
		sql.Named("snapshot", cp.Snapshot),
		sql.Named("state", cp.State),
		sql.Named("created_at", toTimestamp(cp.CreatedAt)),
	)
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrClosed
	}
	return err
}

// Latest returns the most recent checkpoint stored under name.
//
// Returns [ErrNotFound] if no checkpoint exists under that name.
// Returns [ErrClosed] if the storage has been closed.
func (s *Storage) Latest(ctx context.Context, name string) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		createdAt int64
	)
	err := s.db.QueryRowContext(
		ctx,
		`
		select id, name, snapshot, state, created_at
		from checkpoint
		where name = :name
		order by created_at desc, id desc
		limit 1
		`,
		sql.Named("name", name),
	).Scan(
		&cp.ID,
		&cp.Name,
		&cp.Snapshot,
		&cp.State,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil && err.Error() == "sql: database is closed" {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, err
	}

	cp.CreatedAt = fromTimestamp(createdAt)
	return &cp, nil
}

// Replace overwrites the snapshot and state of an existing checkpoint in place. Used after
// a migration re-encoded the state in the current format.
func (s *Storage) Replace(ctx context.Context, cp Checkpoint) error {
	res, err := s.db.ExecContext(
		ctx,
		`
		update checkpoint
		set
			snapshot = :snapshot,
			state = :state
		where
			id = :id
		`,
		sql.Named("id", cp.ID),
		sql.Named("snapshot", cp.Snapshot),
		sql.Named("state", cp.State),
	)
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune deletes all but the newest keep checkpoints stored under name.
func (s *Storage) Prune(ctx context.Context, name string, keep int) error {
	_, err := s.db.ExecContext(
		ctx,
		`
		delete from checkpoint
		where
			name = :name and
			id not in (
				select id from checkpoint
				where name = :name
				order by created_at desc, id desc
				limit :keep
			)
		`,
		sql.Named("name", name),
		sql.Named("keep", keep),
	)
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrClosed
	}
	return err
}

// Close closes the underlying SQLite database.
//
// After closing, all methods on Storage will return [ErrClosed].
func (s *Storage) Close() error {
	return s.db.Close()
}

func open(cfg *Config) (*sql.DB, error) {
	uri, err := url.Parse(cfg.uri)
	if err != nil {
		return nil, fmt.Errorf("parse URI: %w", err)
	}

	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_timeout", "5000") // 5s
	if uri.Opaque == memory || uri.Path == memory {
		uri.Opaque = uuid.NewString()
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	} else {
		params.Add("_journal", "wal")
		params.Add("_sync", "normal")
	}
	for k, v := range uri.Query() {
		if len(v) != 0 {
			params.Set(k, v[0])
		}
	}

	uri.RawQuery = params.Encode()

	db, err := sql.Open("sqlite3", uri.String())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if params.Get("mode") == "memory" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.workers)
		db.SetMaxIdleConns(cfg.workers)
	}

	return db, nil
}

func setup(db *sql.DB) error {
	if _, err := db.Exec(
		`
		create table if not exists checkpoint (
			id         text primary key,
			name       text not null,
			snapshot   blob not null,
			state      blob not null,
			created_at int not null
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Create the index for the latest-checkpoint lookup.
	if _, err := db.Exec(
		`
		create index if not exists idx_checkpoint_latest
		on checkpoint (name, created_at desc, id desc)
		`,
	); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	return nil
}

func toTimestamp(time time.Time) int64 {
	return time.UnixNano()
}

func fromTimestamp(timestamp int64) time.Time {
	return time.Unix(0, timestamp)
}
