package fsinode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateGrowsWithZeros(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/f", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)
	ip.Unlock()
	require.NoError(t, ip.Lock())

	n, err := ip.WriteI([]byte("hi"), 0, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, fs.Truncate(ip, 10))
	require.Equal(t, uint32(10), ip.Size())

	buf := make([]byte, 10)
	got, err := ip.ReadI(buf, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 10, got)
	require.Equal(t, "hi", string(buf[:2]))
	require.Equal(t, make([]byte, 8), buf[2:])

	ip.Unlock()
	fs.Put(ip)
}

func TestTruncateShrinksAndFreesBlocks(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/f", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)
	ip.Unlock()
	require.NoError(t, ip.Lock())

	payload := make([]byte, 3*BlockSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = ip.WriteI(payload, 0, uint32(len(payload)))
	require.NoError(t, err)

	freeBefore, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)

	require.NoError(t, fs.Truncate(ip, BlockSize))
	require.Equal(t, uint32(BlockSize), ip.Size())

	freeAfter, err := countFreeBits(fs.cache, fs.dev, fs.sb)
	require.NoError(t, err)
	require.Equal(t, freeBefore+2, freeAfter)

	buf := make([]byte, BlockSize)
	got, err := ip.ReadI(buf, 0, BlockSize)
	require.NoError(t, err)
	require.Equal(t, BlockSize, got)
	require.Equal(t, payload[:BlockSize], buf)

	ip.Unlock()
	fs.Put(ip)
}

func TestTruncateToZeroFreesEverything(t *testing.T) {
	fs := newFS(t, 512)
	ip, err := fs.Create("/f", TypeFile, 0, 0, 0o644)
	require.NoError(t, err)
	ip.Unlock()
	require.NoError(t, ip.Lock())

	_, err = ip.WriteI(make([]byte, BlockSize), 0, BlockSize)
	require.NoError(t, err)

	require.NoError(t, fs.Truncate(ip, 0))
	require.Equal(t, uint32(0), ip.Size())

	ip.Unlock()
	fs.Put(ip)
}
