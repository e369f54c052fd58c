package vmem

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/pmm"
	"github.com/stretchr/testify/require"
)

func TestSbrkGrowShrink(t *testing.T) {
	alloc := pmm.New(16 * pmm.PageSize)
	as := New(alloc)

	old, err := as.Sbrk(int64(3 * pmm.PageSize))
	require.NoError(t, err)
	require.Equal(t, uint64(0), old)
	require.Equal(t, uint64(3*pmm.PageSize), as.Size())

	old, err = as.Sbrk(-int64(pmm.PageSize))
	require.NoError(t, err)
	require.Equal(t, uint64(3*pmm.PageSize), old)
	require.Equal(t, uint64(2*pmm.PageSize), as.Size())
}

func TestCopyOutCopyInRoundTrip(t *testing.T) {
	alloc := pmm.New(4 * pmm.PageSize)
	as := New(alloc)
	_, err := as.Sbrk(int64(2 * pmm.PageSize))
	require.NoError(t, err)

	data := []byte("hello, kernel")
	require.NoError(t, as.CopyOut(10, data))

	back, err := as.CopyIn(10, len(data))
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestCheckRangeRejectsOutOfBounds(t *testing.T) {
	alloc := pmm.New(2 * pmm.PageSize)
	as := New(alloc)
	_, err := as.Sbrk(int64(pmm.PageSize))
	require.NoError(t, err)

	require.ErrorIs(t, as.CheckRange(pmm.PageSize-1, 2), kerr.ErrInval)
	require.NoError(t, as.CheckRange(0, pmm.PageSize))
}

func TestForkDeepCopiesAndIsIndependent(t *testing.T) {
	alloc := pmm.New(8 * pmm.PageSize)
	parent := New(alloc)
	_, err := parent.Sbrk(int64(pmm.PageSize))
	require.NoError(t, err)
	require.NoError(t, parent.CopyOut(0, []byte("parent-data")))

	child, err := parent.Fork()
	require.NoError(t, err)

	require.NoError(t, child.CopyOut(0, []byte("child-datum")))

	parentBack, _ := parent.CopyIn(0, 11)
	childBack, _ := child.CopyIn(0, 11)
	require.Equal(t, "parent-data", string(parentBack))
	require.Equal(t, "child-datum", string(childBack))
}
