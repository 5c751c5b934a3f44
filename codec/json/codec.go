// This package contains a JSON element codec for arbitrary item types. Each encoded value
// is framed with a 4-byte length prefix so that it can be raw-copied without decoding.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
)

// Name is the default snapshot name.
const Name = "json"

type Codec[T any] struct {
	name string
	buf  *bytes.Buffer
}

func New[T any]() *Codec[T] {
	return &Codec[T]{
		name: Name,
		buf:  new(bytes.Buffer),
	}
}

// Named sets the snapshot name, so that JSON codecs for different item types can be
// registered side by side.
func (c *Codec[T]) Named(name string) *Codec[T] {
	if strings.TrimSpace(name) == "" {
		panic("name can't be blank")
	}
	c.name = name
	return c
}

// Register adds the read-side snapshot factory for a JSON codec of T registered under name.
func Register[T any](reg *codec.Registry, name string) {
	reg.Register(name, func() codec.Snapshot { return New[T]().Named(name).Snapshot() })
}

func (c *Codec[T]) Encode(v T, w *binio.Writer) error {
	c.buf.Reset()
	if err := json.NewEncoder(c.buf).Encode(v); err != nil {
		return err
	}
	return w.WriteBytes(c.buf.Bytes())
}

func (c *Codec[T]) Decode(r *binio.Reader) (T, error) {
	var v T
	data, err := r.ReadBytes()
	if err != nil {
		return v, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", codec.ErrCorrupt, err)
	}
	return v, nil
}

func (c *Codec[T]) RawCopy(r *binio.Reader, w *binio.Writer) error {
	return binio.CopyBytes(r, w)
}

func (c *Codec[T]) Length() int { return codec.VarLength }

func (c *Codec[T]) Immutable() bool { return false }

func (c *Codec[T]) Stateless() bool { return false }

func (c *Codec[T]) Derive() codec.Codec[T] {
	return New[T]().Named(c.name)
}

func (c *Codec[T]) Snapshot() codec.Snapshot {
	name := c.name
	return codec.Leaf(name, 1, func() (any, error) {
		return New[T]().Named(name), nil
	})
}

func (c *Codec[T]) Equal(other codec.Codec[T]) bool {
	o, ok := other.(*Codec[T])
	return ok && o.name == c.name
}

func (c *Codec[T]) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(c.name))
	return h.Sum64()
}
