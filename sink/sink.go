// Package sink implements output of float32 sample buffers through physical speakers.
//
// A Driver opens Sinks for a format. A Sink accepts whole buffers with a blocking Write, so a
// producer writing in a loop is throttled to the rate at which the device consumes audio.
package sink

import (
	"fmt"
	"sync"

	"github.com/faiface/nois"
	"github.com/pkg/errors"
)

// Driver opens sinks on an audio subsystem.
type Driver interface {
	// MinBufferSize returns the smallest buffer, in samples, that the subsystem accepts for
	// format.
	MinBufferSize(format nois.Format) (int, error)

	// Open prepares a sink for format with room for bufferSize samples. The returned sink is
	// in the Ready state.
	Open(format nois.Format, bufferSize int) (Sink, error)
}

// Sink is an audio output endpoint with the lifecycle
// Uninitialized → Ready → Playing → Stopped → Released.
type Sink interface {
	// BeginPlayback makes the sink consume writes. Valid in Ready and Stopped.
	BeginPlayback() error

	// Write blocks until the whole buffer is accepted by the device and returns the number of
	// bytes written.
	Write(samples []float32) (int, error)

	// StopAndFlush stops playback and discards any audio still buffered.
	StopAndFlush() error

	// Release frees the underlying device. The sink can't be used afterwards.
	Release() error

	// State returns the current lifecycle state.
	State() State
}

// State is a lifecycle state of a Sink.
type State int

const (
	Uninitialized State = iota
	Ready
	Playing
	Stopped
	Released
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a sink operation is not valid in its current state.
var ErrInvalidTransition = errors.New("sink: invalid state transition")

// Tracker keeps the lifecycle state of a sink and validates transitions. Sink implementations
// embed it.
type Tracker struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition moves the tracker to the state to if the current state is one of from.
func (t *Tracker) Transition(to State, from ...State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range from {
		if t.state == f {
			t.state = to
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%v → %v", t.state, to)
}

// Begin moves Ready or Stopped to Playing.
func (t *Tracker) Begin() error {
	return t.Transition(Playing, Ready, Stopped)
}

// Halt moves Playing to Stopped. Halting a sink that is not playing is a no-op.
func (t *Tracker) Halt() (wasPlaying bool) {
	return t.Transition(Stopped, Playing) == nil
}

// Release moves any state but Released to Released.
func (t *Tracker) Release() error {
	return t.Transition(Released, Uninitialized, Ready, Playing, Stopped)
}
