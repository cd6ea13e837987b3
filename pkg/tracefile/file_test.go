package tracefile

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/threadscope/pkg/snapshot"
)

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.tsc")
	opts := DefaultWriterOptions()
	opts.Compression = CompressionSnappy

	w, err := Create(path, opts)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	want := make([]*snapshot.ThreadSnapshot, 50)
	for i := range want {
		want[i] = randomSnapshot(rng)
		require.NoError(t, w.Write(want[i]))
	}
	require.NoError(t, w.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, f.Compressed())
	var n int
	for {
		ok, err := f.LoadNext()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.True(t, want[n].Equal(f.Snapshot()))
		n++
	}
	assert.Equal(t, len(want), n)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.tsc"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.tsc")
	require.NoError(t, os.WriteFile(bad, []byte("NOPE"), 0o644))
	_, err = Open(bad)
	assert.ErrorIs(t, err, ErrCorrupt)
}
