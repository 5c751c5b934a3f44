// This package contains stateless element codecs for primitive values. A single instance
// of each codec may be shared between workers.
package prim

import (
	"hash/fnv"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
)

const (
	NameInt32   = "int32"
	NameInt64   = "int64"
	NameFloat64 = "float64"
	NameBool    = "bool"
	NameString  = "string"
	NameBytes   = "bytes"
)

// Register adds the read-side snapshot factories for all primitive codecs.
func Register(reg *codec.Registry) {
	reg.Register(NameInt32, func() codec.Snapshot { return Int32{}.Snapshot() })
	reg.Register(NameInt64, func() codec.Snapshot { return Int64{}.Snapshot() })
	reg.Register(NameFloat64, func() codec.Snapshot { return Float64{}.Snapshot() })
	reg.Register(NameBool, func() codec.Snapshot { return Bool{}.Snapshot() })
	reg.Register(NameString, func() codec.Snapshot { return String{}.Snapshot() })
	reg.Register(NameBytes, func() codec.Snapshot { return Bytes{}.Snapshot() })
}

func leaf[T any](name string, c codec.Codec[T]) codec.Snapshot {
	return codec.Leaf(name, 1, func() (any, error) { return c, nil })
}

func hash(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

type Int32 struct{}

func (Int32) Encode(v int32, w *binio.Writer) error { return w.WriteInt32(v) }

func (Int32) Decode(r *binio.Reader) (int32, error) { return r.ReadInt32() }

func (Int32) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyRaw(r, w, 4) }

func (Int32) Length() int { return 4 }

func (Int32) Immutable() bool { return true }

func (Int32) Stateless() bool { return true }

func (c Int32) Derive() codec.Codec[int32] { return c }

func (c Int32) Snapshot() codec.Snapshot { return leaf[int32](NameInt32, c) }

func (Int32) Equal(other codec.Codec[int32]) bool { _, ok := other.(Int32); return ok }

func (Int32) Hash() uint64 { return hash(NameInt32) }

type Int64 struct{}

func (Int64) Encode(v int64, w *binio.Writer) error { return w.WriteInt64(v) }

func (Int64) Decode(r *binio.Reader) (int64, error) { return r.ReadInt64() }

func (Int64) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyRaw(r, w, 8) }

func (Int64) Length() int { return 8 }

func (Int64) Immutable() bool { return true }

func (Int64) Stateless() bool { return true }

func (c Int64) Derive() codec.Codec[int64] { return c }

func (c Int64) Snapshot() codec.Snapshot { return leaf[int64](NameInt64, c) }

func (Int64) Equal(other codec.Codec[int64]) bool { _, ok := other.(Int64); return ok }

func (Int64) Hash() uint64 { return hash(NameInt64) }

type Float64 struct{}

func (Float64) Encode(v float64, w *binio.Writer) error { return w.WriteFloat64(v) }

func (Float64) Decode(r *binio.Reader) (float64, error) { return r.ReadFloat64() }

func (Float64) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyRaw(r, w, 8) }

func (Float64) Length() int { return 8 }

func (Float64) Immutable() bool { return true }

func (Float64) Stateless() bool { return true }

func (c Float64) Derive() codec.Codec[float64] { return c }

func (c Float64) Snapshot() codec.Snapshot { return leaf[float64](NameFloat64, c) }

func (Float64) Equal(other codec.Codec[float64]) bool { _, ok := other.(Float64); return ok }

func (Float64) Hash() uint64 { return hash(NameFloat64) }

type Bool struct{}

func (Bool) Encode(v bool, w *binio.Writer) error { return w.WriteBool(v) }

func (Bool) Decode(r *binio.Reader) (bool, error) { return r.ReadBool() }

func (Bool) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyRaw(r, w, 1) }

func (Bool) Length() int { return 1 }

func (Bool) Immutable() bool { return true }

func (Bool) Stateless() bool { return true }

func (c Bool) Derive() codec.Codec[bool] { return c }

func (c Bool) Snapshot() codec.Snapshot { return leaf[bool](NameBool, c) }

func (Bool) Equal(other codec.Codec[bool]) bool { _, ok := other.(Bool); return ok }

func (Bool) Hash() uint64 { return hash(NameBool) }

type String struct{}

func (String) Encode(v string, w *binio.Writer) error { return w.WriteString(v) }

func (String) Decode(r *binio.Reader) (string, error) { return r.ReadString() }

func (String) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyBytes(r, w) }

func (String) Length() int { return codec.VarLength }

func (String) Immutable() bool { return true }

func (String) Stateless() bool { return true }

func (c String) Derive() codec.Codec[string] { return c }

func (c String) Snapshot() codec.Snapshot { return leaf[string](NameString, c) }

func (String) Equal(other codec.Codec[string]) bool { _, ok := other.(String); return ok }

func (String) Hash() uint64 { return hash(NameString) }

type Bytes struct{}

func (Bytes) Encode(v []byte, w *binio.Writer) error { return w.WriteBytes(v) }

func (Bytes) Decode(r *binio.Reader) ([]byte, error) { return r.ReadBytes() }

func (Bytes) RawCopy(r *binio.Reader, w *binio.Writer) error { return binio.CopyBytes(r, w) }

func (Bytes) Length() int { return codec.VarLength }

func (Bytes) Immutable() bool { return false }

func (Bytes) Stateless() bool { return true }

func (c Bytes) Derive() codec.Codec[[]byte] { return c }

func (c Bytes) Snapshot() codec.Snapshot { return leaf[[]byte](NameBytes, c) }

func (Bytes) Equal(other codec.Codec[[]byte]) bool { _, ok := other.(Bytes); return ok }

func (Bytes) Hash() uint64 { return hash(NameBytes) }
