package passwd

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

const sample = "root:5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8:0:0:/root:/bin/sh\n" +
	"alice:2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25:1000:1000:/home/alice:/bin/sh\n" +
	"malformed-line-no-colons\n"

func TestParseLooksUpByNameAndUID(t *testing.T) {
	db, err := Parse([]byte(sample))
	require.NoError(t, err)

	e, err := db.ByName("alice")
	require.NoError(t, err)
	require.Equal(t, uint32(1000), e.UID)
	require.Equal(t, "/home/alice", e.Homedir)

	byUID, err := db.ByUID(0)
	require.NoError(t, err)
	require.Equal(t, "root", byUID.Username)
}

func TestParseSkipsMalformedLines(t *testing.T) {
	db, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = db.ByName("malformed-line-no-colons")
	require.ErrorIs(t, err, kerr.ErrNoEnt)
}

func TestNextUIDSkipsBelowOneThousand(t *testing.T) {
	db, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, uint32(1001), db.NextUID())
}

func TestByNameUnknownUserFails(t *testing.T) {
	db, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = db.ByName("nobody")
	require.ErrorIs(t, err, kerr.ErrNoEnt)
}
