package mbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushThenPullRoundTripsHeader(t *testing.T) {
	m := Alloc(64)
	m.CopyIn([]byte("payload"))

	hdr := m.Push(4)
	copy(hdr, []byte{1, 2, 3, 4})
	require.Equal(t, 11, m.Len())
	require.Equal(t, []byte{1, 2, 3, 4}, m.Data()[:4])

	m.Pull(4)
	require.Equal(t, "payload", string(m.Data()))
}

func TestChecksumOfZeroedHeaderIsComplementOfItself(t *testing.T) {
	hdr := make([]byte, 20)
	sum := Checksum(hdr)
	require.NotEqual(t, uint16(0), sum)

	hdr[10] = byte(sum >> 8)
	hdr[11] = byte(sum)
	require.Equal(t, uint16(0), Checksum(hdr))
}

func TestTrimShrinksWindow(t *testing.T) {
	m := Alloc(0)
	m.CopyIn([]byte("hello world"))
	m.Trim(5)
	require.Equal(t, "hello", string(m.Data()))
}
