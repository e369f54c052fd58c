package filetable

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipeWriteThenReadRoundTrip(t *testing.T) {
	tbl := NewTable()
	r, w, err := tbl.OpenPipeEnds()
	require.NoError(t, err)

	n, err := tbl.Write(w, []byte("hello pipe"))
	require.NoError(t, err)
	require.Equal(t, 10, n)

	buf := make([]byte, 10)
	n, err = tbl.Read(r, buf)
	require.NoError(t, err)
	require.Equal(t, "hello pipe", string(buf[:n]))
}

func TestPipeReadBlocksThenWakesOnWrite(t *testing.T) {
	tbl := NewTable()
	r, w, err := tbl.OpenPipeEnds()
	require.NoError(t, err)

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := tbl.Read(r, buf)
		done <- string(buf[:n])
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = tbl.Write(w, []byte("later"))
	require.NoError(t, err)

	select {
	case got := <-done:
		require.Equal(t, "later", got)
	case <-time.After(time.Second):
		t.Fatal("read never woke up after write")
	}
}

func TestPipeCloseWriteEndSignalsEOF(t *testing.T) {
	tbl := NewTable()
	r, w, err := tbl.OpenPipeEnds()
	require.NoError(t, err)
	require.NoError(t, tbl.Close(w))

	buf := make([]byte, 10)
	n, err := tbl.Read(r, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestPipeCloseReadEndFailsPendingWrite(t *testing.T) {
	tbl := NewTable()
	r, w, err := tbl.OpenPipeEnds()
	require.NoError(t, err)
	require.NoError(t, tbl.Close(r))

	_, err = tbl.Write(w, []byte("x"))
	require.Error(t, err)
}

func TestConcurrentPipeUsersDoNotRace(t *testing.T) {
	tbl := NewTable()
	r, w, err := tbl.OpenPipeEnds()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			tbl.Write(w, []byte{byte(i)})
		}
		tbl.Close(w)
	}()
	total := 0
	go func() {
		defer wg.Done()
		buf := make([]byte, 1)
		for {
			n, _ := tbl.Read(r, buf)
			if n == 0 {
				break
			}
			total++
		}
	}()
	wg.Wait()
	require.Equal(t, 100, total)
}
