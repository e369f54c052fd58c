package pmm

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(4 * PageSize)

	free, total := a.Stats()
	require.Equal(t, 4, free)
	require.Equal(t, 4, total)

	p1, err := a.Alloc()
	require.NoError(t, err)
	require.Len(t, p1, PageSize)

	p1[0] = 0xAB
	a.Free(p1)

	free, _ = a.Stats()
	require.Equal(t, 4, free)
}

func TestAllocExhaustion(t *testing.T) {
	a := New(2 * PageSize)

	_, err := a.Alloc()
	require.NoError(t, err)
	_, err = a.Alloc()
	require.NoError(t, err)

	_, err = a.Alloc()
	require.ErrorIs(t, err, kerr.ErrNoMem)
}

func TestAllocZeroesOnReuse(t *testing.T) {
	a := New(PageSize)

	p, err := a.Alloc()
	require.NoError(t, err)
	for i := range p {
		p[i] = 0xFF
	}
	a.Free(p)

	p2, err := a.Alloc()
	require.NoError(t, err)
	for _, b := range p2 {
		require.Equal(t, byte(0), b)
	}
}
