package codec

import (
	"fmt"
	"iter"

	"github.com/avernar/ckpt/binio"
)

// ListCodec is a codec for ordered sequences of T, built on a codec for the elements.
//
// The encoded form is a 4-byte big-endian element count followed by each element's
// encoding in iteration order. Decoded sequences are mutable and must not be shared
// without copying.
type ListCodec[T any] struct {
	elem Codec[T]
}

// List creates a list codec that uses elem to encode the sequence's elements.
func List[T any](elem Codec[T]) *ListCodec[T] {
	if elem == nil {
		panic("elem can't be nil")
	}
	return &ListCodec[T]{elem: elem}
}

// Elem returns the codec for the list's elements.
func (c *ListCodec[T]) Elem() Codec[T] { return c.elem }

func (c *ListCodec[T]) Encode(v []T, w *binio.Writer) error {
	if err := w.WriteInt32(int32(len(v))); err != nil {
		return err
	}
	for _, e := range v {
		if err := c.elem.Encode(e, w); err != nil {
			return err
		}
	}
	return nil
}

// EncodeSeq writes size elements drawn from seq. It serves sequences that don't support
// random access and therefore can't be collected into a slice for [ListCodec.Encode].
func (c *ListCodec[T]) EncodeSeq(seq iter.Seq[T], size int, w *binio.Writer) error {
	if err := w.WriteInt32(int32(size)); err != nil {
		return err
	}

	n := 0
	for e := range seq {
		if n == size {
			return fmt.Errorf("sequence yielded more than %d elements", size)
		}
		if err := c.elem.Encode(e, w); err != nil {
			return err
		}
		n++
	}
	if n != size {
		return fmt.Errorf("sequence yielded %d of %d elements", n, size)
	}

	return nil
}

func (c *ListCodec[T]) Decode(r *binio.Reader) ([]T, error) {
	size, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: read element count: %w", ErrCorrupt, err)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative element count %d", ErrCorrupt, size)
	}

	// One element of spare capacity, so that a single append downstream doesn't regrow.
	list := make([]T, 0, size+1)
	for range int(size) {
		e, err := c.elem.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: decode element %d of %d: %w", ErrCorrupt, len(list), size, err)
		}
		list = append(list, e)
	}

	return list, nil
}

func (c *ListCodec[T]) RawCopy(r *binio.Reader, w *binio.Writer) error {
	size, err := r.ReadInt32()
	if err != nil {
		return fmt.Errorf("%w: read element count: %w", ErrCorrupt, err)
	}
	if size < 0 {
		return fmt.Errorf("%w: negative element count %d", ErrCorrupt, size)
	}
	if err := w.WriteInt32(size); err != nil {
		return err
	}

	for i := range int(size) {
		if err := c.elem.RawCopy(r, w); err != nil {
			return fmt.Errorf("copy element %d of %d: %w", i, size, err)
		}
	}

	return nil
}

func (c *ListCodec[T]) Length() int { return VarLength }

func (c *ListCodec[T]) Immutable() bool { return false }

func (c *ListCodec[T]) Stateless() bool { return c.elem.Stateless() }

func (c *ListCodec[T]) Derive() Codec[[]T] {
	if c.elem.Stateless() {
		return c
	}
	return List(c.elem.Derive())
}

func (c *ListCodec[T]) Snapshot() Snapshot {
	elem := c.elem.Snapshot()
	return &ListSnapshot[T]{
		name:    listName(elem.Name()),
		version: listSnapshotVersion,
		elem:    elem,
	}
}

func (c *ListCodec[T]) Equal(other Codec[[]T]) bool {
	o, ok := other.(*ListCodec[T])
	return ok && c.elem.Equal(o.elem)
}

func (c *ListCodec[T]) Hash() uint64 { return c.elem.Hash() }

const listSnapshotVersion = 1

// ListSnapshot describes the persisted format of a [ListCodec]: its own version plus the
// element codec's snapshot as the single nested snapshot.
type ListSnapshot[T any] struct {
	name    string
	version int32
	elem    Snapshot
}

// RegisterList registers the read-side factory for snapshots of lists whose element
// snapshot carries elemName.
func RegisterList[T any](reg *Registry, elemName string) {
	name := listName(elemName)
	reg.Register(name, func() Snapshot { return &ListSnapshot[T]{name: name} })
}

func listName(elem string) string { return "list<" + elem + ">" }

func (s *ListSnapshot[T]) Name() string { return s.name }

func (s *ListSnapshot[T]) Version() int32 { return s.version }

func (s *ListSnapshot[T]) Children() []Snapshot { return []Snapshot{s.elem} }

func (s *ListSnapshot[T]) Load(version int32, children []Snapshot) error {
	if len(children) != 1 {
		return fmt.Errorf("%w: list snapshot has %d nested snapshots", ErrCorrupt, len(children))
	}
	s.version = version
	s.elem = children[0]
	return nil
}

func (s *ListSnapshot[T]) Resolve(current Snapshot) Compatibility {
	cur, ok := current.(*ListSnapshot[T])
	if !ok {
		return Incompatible(fmt.Sprintf("snapshot %q does not match %q", s.name, current.Name()))
	}
	if s.version != listSnapshotVersion {
		return Incompatible(fmt.Sprintf("unknown list snapshot version %d", s.version))
	}
	// A matching outer version is necessary but not sufficient: the element snapshot can
	// still force incompatibility, at any nesting depth.
	return resolveChildren(s.Children(), cur.Children())
}

func (s *ListSnapshot[T]) Restore() (any, error) {
	elem, err := RestoreAs[T](s.elem)
	if err != nil {
		return nil, fmt.Errorf("restore element codec: %w", err)
	}
	return List(elem), nil
}
