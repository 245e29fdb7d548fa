package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/engine"
	"github.com/faiface/nois/generators"
	"github.com/faiface/nois/service"
	"github.com/faiface/nois/wav"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePlayer records the calls made by the service. Events records calls, wake lock changes
// and indicator changes in a single ordered log.
type fakePlayer struct {
	events   *eventLog
	startErr error

	mu       sync.Mutex
	playing  bool
	volume   float64
	observer func(engine.Status)
}

func (p *fakePlayer) Start(volume float64) error {
	p.events.add("start")
	if p.startErr != nil {
		return p.startErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.volume = volume
	return nil
}

func (p *fakePlayer) Stop() error {
	p.events.add("stop")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *fakePlayer) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	return nil
}

func (p *fakePlayer) Shutdown() error {
	p.events.add("shutdown")
	return nil
}

func (p *fakePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Observe(fn func(engine.Status)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.observer = nil
	}
}

func (p *fakePlayer) currentVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *fakePlayer) currentObserver() func(engine.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observer
}

// fail ends the session the way the engine does after a write error.
func (p *fakePlayer) fail(err error) {
	p.mu.Lock()
	p.playing = false
	fn := p.observer
	p.mu.Unlock()
	fn(engine.Status{State: engine.Idle, Err: &nois.WriteError{Err: err}})
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type recordingLock struct {
	service.NopWakeLock
	events *eventLog
}

func (l *recordingLock) Acquire() error {
	l.events.add("acquire")
	return l.NopWakeLock.Acquire()
}

func (l *recordingLock) Release() error {
	if l.Held() {
		l.events.add("release")
	}
	return l.NopWakeLock.Release()
}

type recordingIndicator struct {
	events *eventLog
	shown  *service.Notification
}

func (i *recordingIndicator) Show(n service.Notification) error {
	i.events.add("show")
	i.shown = &n
	return nil
}

func (i *recordingIndicator) Hide() error {
	i.events.add("hide")
	return nil
}

func newService(t *testing.T) (*service.Service, *fakePlayer, *recordingLock, *recordingIndicator, *eventLog) {
	t.Helper()
	events := &eventLog{}
	player := &fakePlayer{events: events}
	lock := &recordingLock{events: events}
	indicator := &recordingIndicator{events: events}
	log, _ := logtest.NewNullLogger()
	s := service.New(player, lock, indicator, service.DefaultIdentifiers(), log)
	return s, player, lock, indicator, events
}

func TestStartStopSequencing(t *testing.T) {
	s, player, lock, indicator, events := newService(t)

	require.NoError(t, s.Start(0.5))
	assert.True(t, lock.Held())
	require.NotNil(t, indicator.shown)
	assert.Equal(t, "com.example.nois.STOP", indicator.shown.StopAction)
	assert.Equal(t, 1, indicator.shown.ID)
	assert.Equal(t, "Noise Generator", indicator.shown.ChannelName)

	require.NoError(t, s.Start(0.7))
	assert.Equal(t, 0.7, player.volume)

	require.NoError(t, s.Stop())
	assert.False(t, lock.Held())

	require.NoError(t, s.Close())
	assert.Equal(t, []string{
		"acquire", "start", "show",
		"start",
		"stop", "release", "hide",
		"stop", "hide", "shutdown",
	}, events.all())
}

func TestStartFailureReleasesWakeLock(t *testing.T) {
	s, player, lock, _, _ := newService(t)
	defer s.Close()
	player.startErr = nois.ErrEngineDisposed

	err := s.Start(0.5)
	assert.True(t, errors.Is(err, nois.ErrEngineDisposed))
	assert.False(t, lock.Held())
}

func TestEngineEndedSessionReleasesWakeLock(t *testing.T) {
	s, player, lock, _, _ := newService(t)
	defer s.Close()

	require.NoError(t, s.Start(0.5))
	player.fail(errors.New("device revoked"))
	require.Eventually(t, func() bool { return !lock.Held() }, time.Second, time.Millisecond)
}

func TestRequests(t *testing.T) {
	s, player, lock, _, _ := newService(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	ids := s.Identifiers()
	s.Requests() <- ids.StartRequest(0.25)
	s.Requests() <- service.Request{Action: "bogus"}
	assert.True(t, player.Playing())
	assert.True(t, lock.Held())
	assert.Equal(t, 0.25, player.currentVolume())

	s.Requests() <- ids.StopRequest()
	// a further request forces the stop to have been handled
	s.Requests() <- service.Request{Action: "bogus"}
	assert.False(t, player.Playing())
	assert.False(t, lock.Held())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStartRequestVolume(t *testing.T) {
	s, player, _, _, _ := newService(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	ids := s.Identifiers()
	// each request is handled before the next one is accepted
	send := func(req service.Request) {
		s.Requests() <- req
		s.Requests() <- service.Request{Action: "bogus"}
	}

	send(service.Request{Action: ids.ActionStart})
	assert.Equal(t, service.DefaultVolume, player.currentVolume(), "missing volume")

	send(service.Request{Action: ids.ActionStart, Extras: map[string]any{ids.ExtraVolume: "0.4"}})
	assert.Equal(t, 0.4, player.currentVolume())

	send(service.Request{Action: ids.ActionStart, Extras: map[string]any{ids.ExtraVolume: float32(0.75)}})
	assert.Equal(t, 0.75, player.currentVolume())

	send(service.Request{Action: ids.ActionStart, Extras: map[string]any{ids.ExtraVolume: "loud"}})
	assert.Equal(t, 0.75, player.currentVolume(), "malformed volume is ignored")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// An engine status delivered while the service closes must not start work Close doesn't wait for.
func TestLateEngineStatusDuringClose(t *testing.T) {
	s, player, _, _, events := newService(t)
	require.NoError(t, s.Start(0.5))
	observer := player.currentObserver()
	require.NotNil(t, observer)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Close())
	}()
	go func() {
		defer wg.Done()
		observer(engine.Status{State: engine.Idle, Err: &nois.WriteError{Err: errors.New("device revoked")}})
	}()
	wg.Wait()

	got := events.all()
	assert.Equal(t, "shutdown", got[len(got)-1])

	// once closed, nothing is handed off at all
	observer(engine.Status{State: engine.Idle, Err: &nois.WriteError{Err: errors.New("device revoked")}})
	assert.Equal(t, got, events.all())
}

func TestClosedService(t *testing.T) {
	s, _, _, _, _ := newService(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Start(0.5))
	assert.NoError(t, s.Stop())
}

func TestServiceWithEngine(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	driver := &wav.Driver{
		Path:     filepath.Join(t.TempDir(), "noise.wav"),
		Duration: 50 * time.Millisecond,
	}
	eng, err := engine.New(driver, engine.Config{Source: generators.NewSource(3), Logger: log})
	require.NoError(t, err)

	lock := &service.NopWakeLock{}
	s := service.New(eng, lock, &service.LogIndicator{Log: log}, service.DefaultIdentifiers(), log)

	require.NoError(t, s.Start(0.5))
	assert.True(t, lock.Held())
	<-driver.Sink().Done()

	require.NoError(t, s.Stop())
	assert.False(t, lock.Held())
	assert.False(t, eng.Playing())
	require.NoError(t, s.Close())

	assert.Equal(t, nois.DefaultFormat.SampleRate.N(50*time.Millisecond), driver.Sink().Written())
}
