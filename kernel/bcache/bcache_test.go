package bcache

import (
	"path/filepath"
	"testing"

	"github.com/gamer07340/xv6go/kernel/blockdev"
	"github.com/stretchr/testify/require"
)

func newDev(t *testing.T, sectors int64) *blockdev.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, sectors*blockdev.SectorSize, 0)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestAtMostOneBufferPerKey(t *testing.T) {
	c := New(newDev(t, 64), 4)

	b1, err := c.Bget(0, 3)
	require.NoError(t, err)
	c.Release(b1)

	b2, err := c.Bget(0, 3)
	require.NoError(t, err)
	require.Same(t, b1, b2)
	c.Release(b2)
}

func TestSequentialReadsUnderLRUPressure(t *testing.T) {
	c := New(newDev(t, 256), 4)
	for i := uint64(0); i < 64; i++ {
		b, err := c.Read(0, i)
		require.NoError(t, err)
		c.Release(b)
	}
	hits, misses := c.Stats()
	require.Equal(t, uint64(0), hits)
	require.Equal(t, uint64(64), misses)
}

func TestWriteThenReadBack(t *testing.T) {
	c := New(newDev(t, 16), 2)
	b, err := c.Read(0, 1)
	require.NoError(t, err)
	b.SetData([]byte("persisted"))
	b.MarkDirty()
	require.NoError(t, c.Write(b))
	c.Release(b)

	b2, err := c.Bget(0, 1)
	require.NoError(t, err)
	defer c.Release(b2)
	require.Equal(t, byte('p'), b2.Data()[0])
}

func TestRefusesToEvictDirtyBuffer(t *testing.T) {
	c := New(newDev(t, 16), 1)
	b, err := c.Bget(0, 0)
	require.NoError(t, err)
	b.MarkDirty()
	c.Release(b) // refcnt hits 0, but still dirty

	require.Panics(t, func() {
		_, _ = c.Bget(0, 1) // would have to evict the only (dirty) buffer
	})
}
