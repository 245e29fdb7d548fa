package engine_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/sink"
	"github.com/pkg/errors"
)

// fakeSink records every buffer written to it. Each write takes delay, standing in for the
// device consuming the buffer.
type fakeSink struct {
	sink.Tracker

	delay     time.Duration
	failAfter int // fail every write after this many, if positive
	failErr   error

	inflight    atomic.Int32
	maxInflight atomic.Int32

	mu       sync.Mutex
	writes   [][]float32
	flushes  int
	releases int
	begins   int
}

var errRevoked = errors.New("device revoked")

func (s *fakeSink) BeginPlayback() error {
	s.mu.Lock()
	s.begins++
	s.mu.Unlock()
	return s.Begin()
}

func (s *fakeSink) Write(samples []float32) (int, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		prev := s.maxInflight.Load()
		if n <= prev || s.maxInflight.CompareAndSwap(prev, n) {
			break
		}
	}

	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.writes) >= s.failAfter {
		return 0, s.failErr
	}
	s.writes = append(s.writes, append([]float32(nil), samples...))
	return len(samples) * 4, nil
}

func (s *fakeSink) StopAndFlush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	s.Halt()
	return nil
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	s.releases++
	s.mu.Unlock()
	return s.Tracker.Release()
}

func (s *fakeSink) numWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *fakeSink) write(i int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[i]
}

func (s *fakeSink) healthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = 0
}

type fakeDriver struct {
	minBuffer int
	queryErr  error
	openErr   error
	sink      *fakeSink
	opened    int
}

func newFakeDriver(minBuffer int) *fakeDriver {
	return &fakeDriver{
		minBuffer: minBuffer,
		sink:      &fakeSink{delay: 200 * time.Microsecond},
	}
}

func (d *fakeDriver) MinBufferSize(format nois.Format) (int, error) {
	return d.minBuffer, d.queryErr
}

func (d *fakeDriver) Open(format nois.Format, bufferSize int) (sink.Sink, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened++
	if err := d.sink.Transition(sink.Ready, sink.Uninitialized); err != nil {
		return nil, err
	}
	return d.sink, nil
}
