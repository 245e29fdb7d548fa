package engine

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/generators"
	"github.com/faiface/nois/metrics"
	"github.com/faiface/nois/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the play state of an Engine.
type State int

const (
	Idle State = iota
	Playing
	Released
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a state change reported to observers.
type Status struct {
	State  State
	Volume float64

	// Err is the error that ended the session, if any.
	Err error
}

// Config configures a new Engine. The zero value is usable.
type Config struct {
	// Format of the produced stream. Defaults to nois.DefaultFormat.
	Format nois.Format

	// Source of white noise draws. Defaults to a time-seeded source.
	Source generators.Source

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Engine owns an audio sink and the goroutine producing noise into it.
type Engine struct {
	format  nois.Format
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	playing  atomic.Bool
	volume   atomic.Uint64 // math.Float64bits
	disposed atomic.Bool

	// mu serializes Start, Stop and Shutdown.
	mu      sync.Mutex
	sink    sink.Sink
	done    chan struct{} // non-nil while a session has not been joined
	session int
	err     error

	// Owned by the production goroutine while a session runs.
	src     generators.Source
	filter  generators.FilterState
	buf     []float32
	loopErr error

	obsMu     sync.Mutex
	observers map[int]func(Status)
	nextObs   int

	// Statuses are queued under mu, so the queue holds them in the order the state changed.
	evMu       sync.Mutex
	pending    []Status
	delivering bool
}

// New initializes an engine: it queries the minimum buffer size for the format, allocates the
// reusable buffer and opens a sink in the Ready state.
//
// If the driver cannot produce a sink the error satisfies errors.Is(err, nois.ErrDeviceUnavailable)
// and no goroutine is started.
func New(driver sink.Driver, cfg Config) (*Engine, error) {
	if cfg.Format == (nois.Format{}) {
		cfg.Format = nois.DefaultFormat
	}
	if cfg.Source == nil {
		cfg.Source = generators.NewSource(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, nois.DeviceUnavailable(err, "engine")
	}

	size, err := driver.MinBufferSize(cfg.Format)
	if err != nil {
		return nil, unavailable(err, "engine: query buffer size")
	}
	if size <= 0 {
		return nil, nois.DeviceUnavailable(errors.Errorf("invalid buffer size %d", size), "engine")
	}

	s, err := driver.Open(cfg.Format, size)
	if err != nil {
		return nil, unavailable(err, "engine: open sink")
	}

	e := &Engine{
		format:    cfg.Format,
		log:       cfg.Logger.WithField("component", "engine"),
		metrics:   cfg.Metrics,
		sink:      s,
		src:       cfg.Source,
		buf:       make([]float32, size),
		observers: make(map[int]func(Status)),
	}
	e.log.WithFields(logrus.Fields{
		"format": cfg.Format.String(),
		"buffer": size,
		"period": e.BufferPeriod(),
	}).Info("engine initialized")
	return e, nil
}

func unavailable(err error, msg string) error {
	if errors.Is(err, nois.ErrDeviceUnavailable) {
		return errors.WithMessage(err, msg)
	}
	return nois.DeviceUnavailable(err, msg)
}

// Start begins playback at volume. If the engine is already playing, only the volume changes:
// no goroutine is started and the filter keeps its state.
func (e *Engine) Start(volume float64) error {
	e.mu.Lock()
	if e.disposed.Load() {
		e.mu.Unlock()
		return nois.ErrEngineDisposed
	}
	v := e.storeVolume(volume)
	if e.playing.Load() {
		e.mu.Unlock()
		return nil
	}

	// a session that ended on a write error and hasn't been reaped yet
	if ended, wasRunning, _ := e.endSession(); wasRunning {
		e.post(ended)
	}

	e.err = nil
	e.filter = generators.FilterState{}
	if err := e.sink.BeginPlayback(); err != nil {
		e.mu.Unlock()
		e.deliver()
		return errors.Wrap(err, "engine: begin playback")
	}
	e.session++
	session := e.session
	e.playing.Store(true)
	done := make(chan struct{})
	e.done = done
	e.metrics.SessionStarted()
	go e.run(done, session)
	e.post(Status{State: Playing, Volume: v})
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"volume": v, "session": session}).Info("playback started")
	e.deliver()
	return nil
}

// SetVolume clamps volume to [0, 1] and stores it. It takes effect on the next buffer.
func (e *Engine) SetVolume(volume float64) error {
	if e.disposed.Load() {
		return nois.ErrEngineDisposed
	}
	e.storeVolume(volume)
	return nil
}

// Stop ends playback and blocks until the production goroutine has exited, then flushes the
// sink. Stopping an idle engine is a no-op. Stop may be called from any goroutine, including
// an observer.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.disposed.Load() {
		e.mu.Unlock()
		return nois.ErrEngineDisposed
	}
	st, ended, err := e.endSession()
	if ended {
		e.post(st)
	}
	session := e.session
	e.mu.Unlock()

	if ended {
		e.log.WithField("session", session).Info("playback stopped")
	}
	e.deliver()
	return err
}

// Shutdown stops playback and releases the sink. Every later call on the engine returns
// nois.ErrEngineDisposed.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.disposed.Load() {
		e.mu.Unlock()
		return nois.ErrEngineDisposed
	}
	if st, ended, _ := e.endSession(); ended {
		e.post(st)
	}
	err := e.sink.Release()
	e.buf = nil
	e.disposed.Store(true)
	e.post(Status{State: Released, Volume: e.Volume()})
	e.mu.Unlock()

	e.deliver()
	e.log.Info("engine released")
	return errors.Wrap(err, "engine: release sink")
}

// endSession joins the production goroutine and flushes the sink. Must hold mu.
func (e *Engine) endSession() (Status, bool, error) {
	if e.done == nil {
		return Status{}, false, nil
	}
	e.playing.Store(false)
	<-e.done
	e.done = nil
	e.err = e.loopErr
	e.loopErr = nil
	e.metrics.SessionEnded()

	err := e.sink.StopAndFlush()
	if err != nil {
		e.log.WithError(err).Warn("flushing sink failed")
		err = errors.Wrap(err, "engine: stop sink")
	}
	return Status{State: Idle, Volume: e.Volume(), Err: e.err}, true, err
}

// run is the production loop. It exits after the write in progress once playing is cleared.
func (e *Engine) run(done chan struct{}, session int) {
	defer close(done)

	// one OS thread per session, blocked in sink writes
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := e.log.WithField("session", session)
	for e.playing.Load() {
		e.filter = generators.FillBuffer(e.src, e.filter, e.Volume(), e.buf)
		if _, err := e.sink.Write(e.buf); err != nil {
			e.loopErr = &nois.WriteError{Err: err}
			e.playing.Store(false)
			e.metrics.WriteFailed()
			log.WithError(err).Error("sink write failed, ending session")
			go e.reap(done)
			return
		}
		saturated := e.filter.Saturated()
		e.metrics.BufferWritten(len(e.buf), saturated)
		if saturated {
			log.WithField("value", e.filter.Last).Debug("noise filter saturated")
		}
	}
}

// reap finishes a session that the production loop ended on its own.
func (e *Engine) reap(done chan struct{}) {
	e.mu.Lock()
	if e.done != done {
		// already joined by Start, Stop or Shutdown
		e.mu.Unlock()
		return
	}
	st, _, _ := e.endSession()
	e.post(st)
	e.mu.Unlock()
	e.deliver()
}

// Observe registers fn to receive state changes. fn is called without any engine lock held and
// may call back into the engine. Statuses arrive in the order the changes happened; a change
// made from inside fn is delivered after fn returns. The returned function unregisters fn.
func (e *Engine) Observe(fn func(Status)) (cancel func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if e.observers == nil {
		return func() {}
	}
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

// post queues st for observers. Must hold mu.
func (e *Engine) post(st Status) {
	e.evMu.Lock()
	e.pending = append(e.pending, st)
	e.evMu.Unlock()
}

// deliver hands queued statuses to observers in order. Only one goroutine delivers at a time; a
// call made while another is delivering, including one from inside an observer, leaves its
// statuses to that goroutine.
func (e *Engine) deliver() {
	e.evMu.Lock()
	if e.delivering {
		e.evMu.Unlock()
		return
	}
	e.delivering = true
	for len(e.pending) > 0 {
		st := e.pending[0]
		e.pending = e.pending[1:]
		e.evMu.Unlock()

		e.notify(st)
		if st.State == Released {
			e.obsMu.Lock()
			e.observers = nil
			e.obsMu.Unlock()
		}

		e.evMu.Lock()
	}
	e.delivering = false
	e.evMu.Unlock()
}

func (e *Engine) notify(st Status) {
	e.obsMu.Lock()
	fns := make([]func(Status), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.obsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (e *Engine) storeVolume(volume float64) float64 {
	v := nois.ClampVolume(volume)
	e.volume.Store(math.Float64bits(v))
	e.metrics.VolumeChanged(v)
	return v
}

// Volume returns the current volume.
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.volume.Load())
}

// Playing reports whether a session is running.
func (e *Engine) Playing() bool {
	return e.playing.Load()
}

// State returns the current play state.
func (e *Engine) State() State {
	switch {
	case e.disposed.Load():
		return Released
	case e.playing.Load():
		return Playing
	default:
		return Idle
	}
}

// Err returns the error that ended the last session, or nil if it was stopped normally.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Format returns the format of the produced stream.
func (e *Engine) Format() nois.Format {
	return e.format
}

// BufferSize returns the length of the reusable buffer in samples.
func (e *Engine) BufferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf)
}

// BufferPeriod returns the playback duration of one buffer, which bounds the latency of Stop
// and SetVolume.
func (e *Engine) BufferPeriod() time.Duration {
	return e.format.BufferPeriod(e.BufferSize())
}
