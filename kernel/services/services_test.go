package services

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/stretchr/testify/require"
)

const sample = "# comment line\n\ndomain 53/udp\nhttp 80/tcp\nssh 22/tcp\n"

func TestParseLooksUpByNameAndProto(t *testing.T) {
	tbl, err := Parse([]byte(sample))
	require.NoError(t, err)

	port, err := tbl.Lookup("domain", UDP)
	require.NoError(t, err)
	require.Equal(t, uint16(53), port)

	port, err = tbl.Lookup("ssh", TCP)
	require.NoError(t, err)
	require.Equal(t, uint16(22), port)
}

func TestLookupWrongProtoFails(t *testing.T) {
	tbl, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = tbl.Lookup("domain", TCP)
	require.ErrorIs(t, err, kerr.ErrNoEnt)
}

func TestDefaultTableHasDomainAndHTTP(t *testing.T) {
	port, err := DefaultTable.Lookup("domain", UDP)
	require.NoError(t, err)
	require.Equal(t, uint16(53), port)

	port, err = DefaultTable.Lookup("http", TCP)
	require.NoError(t, err)
	require.Equal(t, uint16(80), port)
}
