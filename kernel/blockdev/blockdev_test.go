package blockdev

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadBackRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := Open(path, 64*SectorSize, 0)
	require.NoError(t, err)
	defer dev.Close()

	wbuf := NewBuf(0, 5)
	copy(wbuf.Data[:], "hello sector five")
	wbuf.MarkDirty()
	require.NoError(t, dev.Rw(wbuf))

	rbuf := NewBuf(0, 5)
	require.NoError(t, dev.Rw(rbuf))
	require.Equal(t, wbuf.Data, rbuf.Data)
}

func TestRawPartitionSharesDeviceNamespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	const rawStart = 32 * SectorSize
	dev, err := Open(path, 64*SectorSize, rawStart)
	require.NoError(t, err)
	defer dev.Close()

	normal := NewBuf(0, 0)
	copy(normal.Data[:], "normal-partition")
	normal.MarkDirty()
	require.NoError(t, dev.Rw(normal))

	raw := NewBuf(0, 0)
	raw.Raw = true
	copy(raw.Data[:], "raw-partition-fs")
	raw.MarkDirty()
	require.NoError(t, dev.Rw(raw))

	back := NewBuf(0, 0)
	require.NoError(t, dev.Rw(back))
	require.Equal(t, normal.Data, back.Data)

	backRaw := NewBuf(0, 0)
	backRaw.Raw = true
	require.NoError(t, dev.Rw(backRaw))
	require.Equal(t, raw.Data, backRaw.Data)
}

func TestSequentialReadsUnderPressureDoNotPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := Open(path, 256*SectorSize, 0)
	require.NoError(t, err)
	defer dev.Close()

	for i := uint64(0); i < 200; i++ {
		b := NewBuf(0, i)
		require.NoError(t, dev.Rw(b))
	}
}
