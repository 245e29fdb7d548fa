package sink

import (
	"io"
	"testing"
	"time"

	"github.com/faiface/nois"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	var tr Tracker
	assert.Equal(t, Uninitialized, tr.State())

	require.Error(t, tr.Begin(), "cannot play before ready")
	require.NoError(t, tr.Transition(Ready, Uninitialized))
	require.NoError(t, tr.Begin())
	assert.Equal(t, Playing, tr.State())

	require.Error(t, tr.Begin(), "already playing")
	assert.True(t, tr.Halt())
	assert.False(t, tr.Halt(), "halting a stopped sink is a no-op")
	assert.Equal(t, Stopped, tr.State())

	require.NoError(t, tr.Begin(), "stopped sinks can be restarted")
	require.NoError(t, tr.Release())
	assert.Equal(t, Released, tr.State())

	err := tr.Begin()
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Error(t, tr.Release(), "released is terminal")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "released", Released.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestMinBufferSize(t *testing.T) {
	n, err := minBufferSize(nois.DefaultFormat, 0)
	require.NoError(t, err)
	assert.Equal(t, 882, n)

	n, err = minBufferSize(nois.DefaultFormat, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4410, n)
}

func TestMinBufferSizeRejectsFormat(t *testing.T) {
	stereo := nois.DefaultFormat
	stereo.NumChannels = 2
	_, err := minBufferSize(stereo, 0)
	assert.True(t, errors.Is(err, nois.ErrDeviceUnavailable))

	_, err = minBufferSize(nois.DefaultFormat, time.Nanosecond)
	assert.True(t, errors.Is(err, nois.ErrDeviceUnavailable))
}

// A play that fills its buffer synchronously from the pipe, the way oto does on windows, must
// not block the first write, nor keep later writes from reaching it.
func TestPlayAlongsideSynchronousPlay(t *testing.T) {
	pr, pw := io.Pipe()
	first := []byte{1, 2, 3, 4}
	second := []byte{5, 6, 7, 8}

	got := make([]byte, len(first)+len(second))
	var readErr error
	play := func() { _, readErr = io.ReadFull(pr, got) }

	done := make(chan struct{})
	var (
		n      int
		played <-chan struct{}
		err    error
	)
	go func() {
		defer close(done)
		n, played, err = playAlongside(play, func() (int, error) { return pw.Write(first) })
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first write blocked on play")
	}
	require.NoError(t, err)
	assert.Equal(t, len(first), n)

	select {
	case <-played:
		t.Fatal("play returned before its buffer was full")
	default:
	}

	_, err = pw.Write(second)
	require.NoError(t, err)
	select {
	case <-played:
	case <-time.After(5 * time.Second):
		t.Fatal("play never returned")
	}
	require.NoError(t, readErr)
	assert.Equal(t, append(first, second...), got)
}

func TestPlayAlongsideClosedPipe(t *testing.T) {
	pr, pw := io.Pipe()
	play := func() { _, _ = io.ReadAll(pr) }

	_, played, err := playAlongside(play, func() (int, error) { return pw.Write([]byte{1}) })
	require.NoError(t, err)

	// closing the source ends a play still reading it
	require.NoError(t, pw.CloseWithError(io.EOF))
	select {
	case <-played:
	case <-time.After(5 * time.Second):
		t.Fatal("play never returned")
	}
}
