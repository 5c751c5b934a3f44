package codec_test

import (
	"bytes"
	"testing"

	"github.com/avernar/ckpt/binio"
	"github.com/avernar/ckpt/codec"
	"github.com/avernar/ckpt/codec/prim"
	"github.com/avernar/ckpt/internal/testing/require"
)

func newTestRegistry() *codec.Registry {
	reg := codec.NewRegistry()
	prim.Register(reg)
	registerVerString(reg)
	codec.RegisterList[int32](reg, prim.NameInt32)
	codec.RegisterList[string](reg, "ver-string")
	return reg
}

func TestSnapshotRoundTrip(t *testing.T) {
	list := codec.List[int32](prim.Int32{})

	var buf bytes.Buffer
	require.Nil(t, codec.WriteSnapshot(binio.NewWriter(&buf), list.Snapshot()))

	s, err := codec.ReadSnapshot(binio.NewReader(&buf), newTestRegistry())
	require.Nil(t, err)
	require.Equal(t, s.Name(), "list<int32>")
	require.Equal(t, s.Version(), int32(1))
	require.Equal(t, len(s.Children()), 1)
	require.Equal(t, s.Children()[0].Name(), prim.NameInt32)
}

func TestSnapshotUnknownName(t *testing.T) {
	list := codec.List[int32](prim.Int32{})

	var buf bytes.Buffer
	require.Nil(t, codec.WriteSnapshot(binio.NewWriter(&buf), list.Snapshot()))

	_, err := codec.ReadSnapshot(binio.NewReader(&buf), codec.NewRegistry())
	require.NotNil(t, err)
}

func TestSnapshotTruncated(t *testing.T) {
	list := codec.List[int32](prim.Int32{})

	var buf bytes.Buffer
	require.Nil(t, codec.WriteSnapshot(binio.NewWriter(&buf), list.Snapshot()))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := codec.ReadSnapshot(binio.NewReader(bytes.NewReader(truncated)), newTestRegistry())
	require.ErrorIs(t, err, codec.ErrCorrupt)
}

func TestResolveReflexive(t *testing.T) {
	// A snapshot taken from a codec must resolve compatible against a freshly constructed,
	// identically configured codec.
	written := codec.List[string](verString{version: 1}).Snapshot()
	current := codec.List[string](verString{version: 1}).Snapshot()

	require.True(t, written.Resolve(current).IsCompatible())
}

func TestResolveNestedMigration(t *testing.T) {
	persisted := codec.List[string](verString{version: 1}).Snapshot()
	current := codec.List[string](verString{version: 2}).Snapshot()

	compat := persisted.Resolve(current)
	require.True(t, compat.RequiresMigration())
	require.False(t, compat.IsCompatible())
}

func TestResolveNestedIncompatible(t *testing.T) {
	// The outer list snapshot version is unchanged, but the nested element snapshot alone
	// forces overall incompatibility.
	persisted := codec.List[string](verString{version: 1}).Snapshot()
	current := codec.List[string](verString{version: 3}).Snapshot()

	compat := persisted.Resolve(current)
	require.True(t, compat.IsIncompatible())
	require.NotEqual(t, compat.Reason(), "")
}

func TestResolveNestedIncompatibleAtDepth(t *testing.T) {
	// The weakest-link rule holds for codecs nested to arbitrary depth.
	persisted := codec.List[[]string](codec.List[string](verString{version: 1})).Snapshot()
	current := codec.List[[]string](codec.List[string](verString{version: 3})).Snapshot()

	require.True(t, persisted.Resolve(current).IsIncompatible())
}

func TestResolveElementTypeChanged(t *testing.T) {
	persisted := codec.List[int32](prim.Int32{}).Snapshot()
	current := codec.List[string](verString{version: 1}).Snapshot()

	require.True(t, persisted.Resolve(current).IsIncompatible())
}

func TestLeafResolve(t *testing.T) {
	a := prim.Int32{}.Snapshot()
	b := prim.Int32{}.Snapshot()
	require.True(t, a.Resolve(b).IsCompatible())

	other := prim.Int64{}.Snapshot()
	require.True(t, a.Resolve(other).IsIncompatible())
}

func TestRestore(t *testing.T) {
	original := codec.List[string](verString{version: 1})

	var data bytes.Buffer
	require.Nil(t, original.Encode([]string{"a", "b"}, binio.NewWriter(&data)))

	var snap bytes.Buffer
	require.Nil(t, codec.WriteSnapshot(binio.NewWriter(&snap), original.Snapshot()))

	persisted, err := codec.ReadSnapshot(binio.NewReader(&snap), newTestRegistry())
	require.Nil(t, err)

	restored, err := codec.RestoreAs[[]string](persisted)
	require.Nil(t, err)

	decoded, err := restored.Decode(binio.NewReader(&data))
	require.Nil(t, err)
	require.Equal(t, decoded, []string{"a", "b"})
}

func TestRestoreWrongType(t *testing.T) {
	persisted := codec.List[int32](prim.Int32{}).Snapshot()

	_, err := codec.RestoreAs[[]string](persisted)
	require.NotNil(t, err)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := codec.NewRegistry()
	prim.Register(reg)

	require.PanicWithError(t, `snapshot "int32" already registered`, func() {
		prim.Register(reg)
	})
}

func TestCompatibilityString(t *testing.T) {
	require.Equal(t, codec.CompatibleAsIs().String(), "compatible")
	require.Equal(t, codec.CompatibleAfterMigration().String(), "compatible after migration")
	require.Equal(t, codec.Incompatible("boom").String(), "incompatible: boom")
}
