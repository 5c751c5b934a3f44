// This package contains the main [Codec] interface, the [ListCodec] container codec and the
// snapshot machinery for cross-version compatibility checks. Element codec implementations live
// inside subpackages.
package codec

import (
	"errors"

	"github.com/avernar/ckpt/binio"
)

// ErrCorrupt is wrapped by decode and raw-copy failures caused by malformed input.
var ErrCorrupt = errors.New("corrupt data")

// VarLength is returned by [Codec.Length] when the encoded size depends on the value.
const VarLength = -1

// Codec encodes and decodes single values of type T in a fixed binary format.
//
// Implementations are not considered thread-safe unless [Codec.Stateless] reports true. Each
// worker derives its own instance before first use.
type Codec[T any] interface {
	// Encode writes v to w in the codec's binary format.
	Encode(v T, w *binio.Writer) error
	// Decode reads one value from r, consuming exactly its encoding.
	Decode(r *binio.Reader) (T, error)
	// RawCopy transfers one encoded value from r to w without materializing it.
	//
	// The output is equivalent to Decode followed by Encode. After a failed copy the writer
	// position is undefined and the caller must abort the encompassing write.
	RawCopy(r *binio.Reader, w *binio.Writer) error
	// Length returns the encoded size in bytes, or [VarLength] for content-dependent
	// framing.
	Length() int
	// Immutable reports whether decoded values are safe to share without copying.
	Immutable() bool
	// Stateless reports whether the codec keeps no mutable scratch state between calls.
	//
	// A stateless codec instance may be shared between workers.
	Stateless() bool
	// Derive returns a Codec instance safe for independent use by another worker.
	//
	// Stateless codecs may return themselves; stateful codecs return a fresh instance
	// with the same settings.
	Derive() Codec[T]
	// Snapshot captures a descriptor of the codec's current format, suitable for
	// persisting alongside encoded data.
	Snapshot() Snapshot
	// Equal reports whether other encodes the same format. Codec equality is used as a
	// cache and dedup key.
	Equal(other Codec[T]) bool
	// Hash returns a hash consistent with Equal.
	Hash() uint64
}
