package perm

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

func TestOwnerClassAppliesWhenUIDMatches(t *testing.T) {
	require.NoError(t, Check(100, 100, 0o640, 100, 200, Read))
	require.NoError(t, Check(100, 100, 0o640, 100, 200, Write))
	require.Error(t, Check(100, 100, 0o440, 100, 200, Write))
}

func TestGroupClassAppliesWhenGIDMatchesButNotUID(t *testing.T) {
	require.NoError(t, Check(999, 200, 0o640, 100, 200, Read))
	require.Error(t, Check(999, 200, 0o640, 100, 200, Write))
}

func TestOtherClassAppliesOtherwise(t *testing.T) {
	require.Error(t, Check(999, 999, 0o640, 100, 200, Read))
	require.NoError(t, Check(999, 999, 0o644, 100, 200, Read))
}

func TestUIDZeroBypassesEveryCheck(t *testing.T) {
	require.NoError(t, Check(0, 0, 0o000, 100, 200, Read))
	require.NoError(t, Check(0, 0, 0o000, 100, 200, Write))
}

func TestCheckReturnsPermissionDeniedKind(t *testing.T) {
	err := Check(999, 999, 0o600, 100, 200, Read)
	require.ErrorIs(t, err, kerr.ErrPerm)
}
