package fsinode

import (
	"path/filepath"
	"testing"

	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/blockdev"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, totalBlocks uint32) *FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, int64(totalBlocks)*BlockSize, 0)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	cache := bcache.New(dev, 32)
	const logBlocks = 16
	logStart := uint32(2)
	log, err := journal.Open(cache, 0, uint64(logStart), logBlocks)
	require.NoError(t, err)

	fs, err := Format(cache, log, 0, totalBlocks, 50, logBlocks)
	require.NoError(t, err)
	return fs
}

func TestRootDirectoryHasDotEntries(t *testing.T) {
	fs := newFS(t, 512)
	root := fs.Get(RootInum)
	require.NoError(t, root.Lock())
	defer func() { root.Unlock(); fs.Put(root) }()

	require.Equal(t, TypeDir, root.Type())
	require.True(t, root.Size()%DirentSize == 0)

	inum, _, err := fs.dirlookup(root, ".")
	require.NoError(t, err)
	require.Equal(t, uint32(RootInum), inum)

	inum, _, err = fs.dirlookup(root, "..")
	require.NoError(t, err)
	require.Equal(t, uint32(RootInum), inum)
}

func TestCreateAddsDirentAndAllocatesInode(t *testing.T) {
	fs := newFS(t, 512)
	freeBefore, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)

	ip, err := fs.Create("/foo", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)
	require.Equal(t, TypeFile, ip.Type())
	require.EqualValues(t, 1, ip.Nlink())
	require.EqualValues(t, 0, ip.Size())
	ip.Unlock()
	fs.Put(ip)

	freeAfter, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)
	require.Equal(t, freeBefore, freeAfter, "an empty file allocates no data blocks")

	found, err := fs.Namei("/foo")
	require.NoError(t, err)
	require.NotNil(t, found)
	found.Unlock()
	fs.Put(found)
}

func TestWriteThenReadBackRoundTrip(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/data", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)

	payload := make([]byte, 3*BlockSize+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := ip.WriteI(payload, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	readBack := make([]byte, len(payload))
	n, err = ip.ReadI(readBack, 0, uint32(len(readBack)))
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)

	ip.Unlock()
	fs.Put(ip)
}

func TestWriteGrowsFileAtCurrentSize(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/grow", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)

	_, err = ip.WriteI([]byte("hello"), 0, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, ip.Size())

	_, err = ip.WriteI([]byte(" world"), 5, 6)
	require.NoError(t, err)
	require.EqualValues(t, 11, ip.Size())

	ip.Unlock()
	fs.Put(ip)
}

func TestWritePastMaxFileBlocksFailsGracefully(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/huge", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)
	defer func() { ip.Unlock(); fs.Put(ip) }()

	_, err = ip.WriteI([]byte("x"), uint32(MaxFileBlocks)*BlockSize, 1)
	require.ErrorIs(t, err, kerr.ErrNoSpace)
}

func TestMkdirThenRmdirRestoresFreeState(t *testing.T) {
	fs := newFS(t, 512)
	freeBefore, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)

	ip, err := fs.Create("/sub", TypeDir, 0, 0, 0o755)
	require.NoError(t, err)
	dot, _, err := fs.dirlookup(ip, ".")
	require.NoError(t, err)
	require.Equal(t, ip.Inum, dot)
	dotdot, _, err := fs.dirlookup(ip, "..")
	require.NoError(t, err)
	require.Equal(t, uint32(RootInum), dotdot)
	ip.Unlock()
	fs.Put(ip)

	require.NoError(t, fs.Unlink("/sub"))

	freeAfter, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)
	require.Equal(t, freeBefore, freeAfter)
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	fs := newFS(t, 512)
	dirIp, err := fs.Create("/d", TypeDir, 0, 0, 0o755)
	require.NoError(t, err)
	dot, _, err := fs.dirlookup(dirIp, ".")
	require.NoError(t, err)
	require.Equal(t, dirIp.Inum, dot)
	dotdot, _, err := fs.dirlookup(dirIp, "..")
	require.NoError(t, err)
	require.Equal(t, uint32(RootInum), dotdot)
	dirIp.Unlock()
	fs.Put(dirIp)

	_, err = fs.Create("/d/child", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)

	err = fs.Unlink("/d")
	require.Error(t, err)
}
