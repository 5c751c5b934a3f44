package codec

import (
	"fmt"

	"github.com/avernar/ckpt/binio"
)

// Snapshot is a versioned descriptor of a codec's persisted format.
//
// Snapshots form an immutable tree: a composite codec's snapshot holds one child per
// constituent codec, in a fixed order. A snapshot taken while writing is persisted next to
// the encoded data; on recovery it is read back and resolved against the current codec's
// snapshot to decide whether the old bytes can still be read.
type Snapshot interface {
	// Name is the registry key identifying the snapshot's concrete type.
	Name() string
	// Version is the snapshot's own format version, bumped when its layout changes.
	Version() int32
	// Children returns the nested snapshots in their fixed order, or nil for a leaf.
	Children() []Snapshot
	// Load populates a snapshot constructed for reading from the persisted version tag
	// and nested snapshots.
	Load(version int32, children []Snapshot) error
	// Resolve decides whether data written in this (persisted) snapshot's format can be
	// read by a codec described by current.
	Resolve(current Snapshot) Compatibility
	// Restore builds a codec able to read data written in this snapshot's format.
	Restore() (any, error)
}

// Compatibility is the result of resolving a persisted snapshot against a current one.
//
// The zero value is [CompatibleAsIs].
type Compatibility struct {
	kind   compatKind
	reason string
}

type compatKind int

const (
	compatAsIs compatKind = iota
	compatMigrate
	compatIncompatible
)

// CompatibleAsIs means the persisted format can be read directly by the current codec.
func CompatibleAsIs() Compatibility {
	return Compatibility{kind: compatAsIs}
}

// CompatibleAfterMigration means the persisted data must be re-encoded with the current
// codec before it matches the current format.
func CompatibleAfterMigration() Compatibility {
	return Compatibility{kind: compatMigrate}
}

// Incompatible means resolution failed and the persisted data cannot be read.
func Incompatible(reason string) Compatibility {
	return Compatibility{kind: compatIncompatible, reason: reason}
}

func (c Compatibility) IsCompatible() bool      { return c.kind == compatAsIs }
func (c Compatibility) RequiresMigration() bool { return c.kind == compatMigrate }
func (c Compatibility) IsIncompatible() bool    { return c.kind == compatIncompatible }

// Reason explains an incompatible result. Empty otherwise.
func (c Compatibility) Reason() string { return c.reason }

func (c Compatibility) String() string {
	switch c.kind {
	case compatAsIs:
		return "compatible"
	case compatMigrate:
		return "compatible after migration"
	default:
		return "incompatible: " + c.reason
	}
}

// RestoreAs restores a codec for values of type T from a persisted snapshot.
func RestoreAs[T any](s Snapshot) (Codec[T], error) {
	v, err := s.Restore()
	if err != nil {
		return nil, err
	}
	c, ok := v.(Codec[T])
	if !ok {
		return nil, fmt.Errorf("snapshot %q restored %T, not a codec for the requested type", s.Name(), v)
	}
	return c, nil
}

// resolveChildren applies the weakest-link rule pairwise: any incompatible child makes the
// whole resolution incompatible, any child requiring migration makes it require migration.
func resolveChildren(persisted, current []Snapshot) Compatibility {
	if len(persisted) != len(current) {
		return Incompatible(fmt.Sprintf(
			"nested snapshot count changed from %d to %d", len(persisted), len(current),
		))
	}

	res := CompatibleAsIs()
	for i := range persisted {
		c := persisted[i].Resolve(current[i])
		if c.IsIncompatible() {
			return c
		}
		if c.RequiresMigration() {
			res = c
		}
	}

	return res
}

// WriteSnapshot persists s to w.
//
// The layout is the snapshot's name, its version tag, the number of nested snapshots, then
// each nested snapshot recursively in the same layout. This layout is itself subject to the
// compatibility contract and must remain stable.
func WriteSnapshot(w *binio.Writer, s Snapshot) error {
	if err := w.WriteString(s.Name()); err != nil {
		return err
	}
	if err := w.WriteInt32(s.Version()); err != nil {
		return err
	}

	children := s.Children()
	if err := w.WriteInt32(int32(len(children))); err != nil {
		return err
	}
	for _, child := range children {
		if err := WriteSnapshot(w, child); err != nil {
			return err
		}
	}

	return nil
}

// ReadSnapshot reads a snapshot tree persisted by [WriteSnapshot], constructing each node
// through the registry.
func ReadSnapshot(r *binio.Reader, reg *Registry) (Snapshot, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot name: %w", ErrCorrupt, err)
	}

	s, err := reg.New(name)
	if err != nil {
		return nil, err
	}

	version, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot version: %w", ErrCorrupt, err)
	}

	count, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: read nested snapshot count: %w", ErrCorrupt, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative nested snapshot count %d", ErrCorrupt, count)
	}

	children := make([]Snapshot, 0, count)
	for range int(count) {
		child, err := ReadSnapshot(r, reg)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if err := s.Load(version, children); err != nil {
		return nil, err
	}

	return s, nil
}

// Registry maps snapshot names to read-side factories.
//
// Register during initialization; Registry is not safe for concurrent mutation.
type Registry struct {
	factories map[string]func() Snapshot
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Snapshot)}
}

// Register adds a factory producing an empty snapshot for [ReadSnapshot] to populate.
// Registering the same name twice panics.
func (r *Registry) Register(name string, factory func() Snapshot) {
	if name == "" {
		panic("snapshot name can't be blank")
	}
	if factory == nil {
		panic("factory can't be nil")
	}
	if _, ok := r.factories[name]; ok {
		panic(fmt.Sprintf("snapshot %q already registered", name))
	}
	r.factories[name] = factory
}

// New constructs an empty snapshot for the given name.
func (r *Registry) New(name string) (Snapshot, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("snapshot %q is not registered", name)
	}
	return factory(), nil
}

// LeafSnapshot describes a codec without nested codecs. The codec is compatible with
// persisted data iff the persisted name and version match exactly.
type LeafSnapshot struct {
	name    string
	version int32
	restore func() (any, error)
}

// Leaf creates a leaf snapshot. The restore function rebuilds the described codec.
func Leaf(name string, version int32, restore func() (any, error)) *LeafSnapshot {
	if name == "" {
		panic("snapshot name can't be blank")
	}
	if restore == nil {
		panic("restore can't be nil")
	}
	return &LeafSnapshot{name: name, version: version, restore: restore}
}

func (s *LeafSnapshot) Name() string { return s.name }

func (s *LeafSnapshot) Version() int32 { return s.version }

func (s *LeafSnapshot) Children() []Snapshot { return nil }

func (s *LeafSnapshot) Load(version int32, children []Snapshot) error {
	if len(children) != 0 {
		return fmt.Errorf("%w: snapshot %q has %d unexpected nested snapshots",
			ErrCorrupt, s.name, len(children))
	}
	s.version = version
	return nil
}

func (s *LeafSnapshot) Resolve(current Snapshot) Compatibility {
	cur, ok := current.(*LeafSnapshot)
	if !ok || cur.name != s.name {
		return Incompatible(fmt.Sprintf("snapshot %q does not match %q", s.name, current.Name()))
	}
	if s.version != cur.version {
		return Incompatible(fmt.Sprintf(
			"snapshot %q version changed from %d to %d", s.name, s.version, cur.version,
		))
	}
	return CompatibleAsIs()
}

func (s *LeafSnapshot) Restore() (any, error) { return s.restore() }
