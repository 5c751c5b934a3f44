package codec_test

import (
	"fmt"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
)

// scratchString is a stateful string codec: it reuses a private scratch buffer between
// Encode calls, so an instance must not be shared between workers.
type scratchString struct {
	buf []byte
}

func newScratchString() *scratchString {
	return &scratchString{buf: make([]byte, 0, 64)}
}

func (c *scratchString) Encode(v string, w *binio.Writer) error {
	c.buf = append(c.buf[:0], v...)
	return w.WriteBytes(c.buf)
}

func (c *scratchString) Decode(r *binio.Reader) (string, error) {
	return r.ReadString()
}

func (c *scratchString) RawCopy(r *binio.Reader, w *binio.Writer) error {
	return binio.CopyBytes(r, w)
}

func (c *scratchString) Length() int { return codec.VarLength }

func (c *scratchString) Immutable() bool { return true }

func (c *scratchString) Stateless() bool { return false }

func (c *scratchString) Derive() codec.Codec[string] { return newScratchString() }

func (c *scratchString) Snapshot() codec.Snapshot {
	return codec.Leaf("scratch-string", 1, func() (any, error) {
		return newScratchString(), nil
	})
}

func (c *scratchString) Equal(other codec.Codec[string]) bool {
	_, ok := other.(*scratchString)
	return ok
}

func (c *scratchString) Hash() uint64 { return 7 }

// verString is a stateless string codec whose snapshot version can be bumped. Version n+1
// declares it can read version n data after migration; anything further apart is
// incompatible.
type verString struct {
	version int32
}

func (c verString) Encode(v string, w *binio.Writer) error { return w.WriteString(v) }

func (c verString) Decode(r *binio.Reader) (string, error) { return r.ReadString() }

func (c verString) RawCopy(r *binio.Reader, w *binio.Writer) error {
	return binio.CopyBytes(r, w)
}

func (c verString) Length() int { return codec.VarLength }

func (c verString) Immutable() bool { return true }

func (c verString) Stateless() bool { return true }

func (c verString) Derive() codec.Codec[string] { return c }

func (c verString) Snapshot() codec.Snapshot {
	return &verSnapshot{version: c.version}
}

func (c verString) Equal(other codec.Codec[string]) bool {
	o, ok := other.(verString)
	return ok && o.version == c.version
}

func (c verString) Hash() uint64 { return uint64(c.version) }

type verSnapshot struct {
	version int32
}

func registerVerString(reg *codec.Registry) {
	reg.Register("ver-string", func() codec.Snapshot { return &verSnapshot{} })
}

func (s *verSnapshot) Name() string { return "ver-string" }

func (s *verSnapshot) Version() int32 { return s.version }

func (s *verSnapshot) Children() []codec.Snapshot { return nil }

func (s *verSnapshot) Load(version int32, children []codec.Snapshot) error {
	if len(children) != 0 {
		return fmt.Errorf("unexpected nested snapshots")
	}
	s.version = version
	return nil
}

func (s *verSnapshot) Resolve(current codec.Snapshot) codec.Compatibility {
	cur, ok := current.(*verSnapshot)
	if !ok {
		return codec.Incompatible("not a ver-string snapshot")
	}
	switch {
	case s.version == cur.version:
		return codec.CompatibleAsIs()
	case s.version+1 == cur.version:
		return codec.CompatibleAfterMigration()
	default:
		return codec.Incompatible(fmt.Sprintf(
			"ver-string version changed from %d to %d", s.version, cur.version,
		))
	}
}

func (s *verSnapshot) Restore() (any, error) {
	return verString{version: s.version}, nil
}
