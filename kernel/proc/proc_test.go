package proc

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

func TestForkWaitReapsSlot(t *testing.T) {
	tbl := NewTable()
	parent := &Proc{PID: 1, State: Running, Name: "init"}

	child, err := tbl.Fork(parent)
	require.NoError(t, err)
	require.Equal(t, Embryo, child.State)

	tbl.SetRunnable(child)
	require.Equal(t, 1, tbl.Count())

	tbl.Exit(child, 7)

	pid, status, err := tbl.Wait(parent)
	require.NoError(t, err)
	require.Equal(t, child.PID, pid)
	require.Equal(t, 7, status)

	// Slot was freed: no leaked table entries (spec §8's "no leaking
	// proc-table slots" property).
	require.Equal(t, 0, tbl.Count())
}

func TestWaitWithNoChildrenFails(t *testing.T) {
	tbl := NewTable()
	parent := &Proc{PID: 1, State: Running}

	_, _, err := tbl.Wait(parent)
	require.ErrorIs(t, err, kerr.ErrState)
}

func TestForkUnderLimitThenWaitRepeatedly(t *testing.T) {
	tbl := NewTable()
	parent := &Proc{PID: 1, State: Running}

	const n = MaxProcs
	for i := 0; i < n; i++ {
		c, err := tbl.Fork(parent)
		require.NoError(t, err)
		tbl.Exit(c, 0)
	}
	require.Equal(t, n, tbl.Count())

	for i := 0; i < n; i++ {
		_, _, err := tbl.Wait(parent)
		require.NoError(t, err)
	}
	require.Equal(t, 0, tbl.Count())
}

func TestKillUnknownPID(t *testing.T) {
	tbl := NewTable()
	require.ErrorIs(t, tbl.Kill(999), kerr.ErrNoEnt)
}
