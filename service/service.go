// Package service keeps noise playing in the background: it ties the engine to a wake lock and
// an ongoing indicator, and accepts start and stop requests from outside the control surface.
package service

import (
	"context"
	"sync"

	"github.com/faiface/nois/engine"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// DefaultVolume is used by start requests that carry no volume.
const DefaultVolume = 0.5

// Player is the engine contract used by the service. *engine.Engine implements it.
type Player interface {
	Start(volume float64) error
	Stop() error
	SetVolume(volume float64) error
	Shutdown() error
	Playing() bool
	Observe(fn func(engine.Status)) (cancel func())
}

// Request asks the service to start or stop, as sent by a notification action. Extras are
// keyed by the names in Identifiers.
type Request struct {
	Action string
	Extras map[string]any
}

// StartRequest builds the request that starts playback at volume.
func (ids Identifiers) StartRequest(volume float64) Request {
	return Request{
		Action: ids.ActionStart,
		Extras: map[string]any{ids.ExtraVolume: volume},
	}
}

// StopRequest builds the request that stops playback.
func (ids Identifiers) StopRequest() Request {
	return Request{Action: ids.ActionStop}
}

// Service sequences the wake lock and indicator around engine sessions.
type Service struct {
	player    Player
	lock      WakeLock
	indicator Indicator
	ids       Identifiers
	log       logrus.FieldLogger

	requests chan Request
	cancel   func()

	// handoffs tracks goroutines started by onStatus. wgMu orders their Add before Close waits.
	wgMu     sync.Mutex
	draining bool
	handoffs sync.WaitGroup

	// mu serializes Start, Stop and Close.
	mu     sync.Mutex
	closed bool
}

// New returns a service around player. It observes the player so that sessions ended by the
// engine itself also release the wake lock.
func New(player Player, lock WakeLock, indicator Indicator, ids Identifiers, log logrus.FieldLogger) *Service {
	if lock == nil {
		lock = &NopWakeLock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if indicator == nil {
		indicator = &LogIndicator{Log: log}
	}
	s := &Service{
		player:    player,
		lock:      lock,
		indicator: indicator,
		ids:       ids,
		log:       log.WithField("component", "service"),
		requests:  make(chan Request),
	}
	s.cancel = player.Observe(s.onStatus)
	return s
}

// Identifiers returns the identifiers the service was built with.
func (s *Service) Identifiers() Identifiers {
	return s.ids
}

// Start acquires the wake lock, starts the engine and shows the indicator. When already
// playing it only updates the volume.
func (s *Service) Start(volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("service: closed")
	}

	if s.player.Playing() {
		return s.player.Start(volume)
	}

	if err := s.lock.Acquire(); err != nil {
		// noise without a wake lock still beats no noise
		s.log.WithError(err).Warn("failed to acquire wake lock")
	}
	if err := s.player.Start(volume); err != nil {
		s.quiesce()
		return errors.Wrap(err, "service: start")
	}
	if err := s.indicator.Show(s.ids.notification()); err != nil {
		s.log.WithError(err).Warn("failed to show indicator")
	}
	return nil
}

// SetVolume changes the volume of the engine.
func (s *Service) SetVolume(volume float64) error {
	return s.player.SetVolume(volume)
}

// Stop stops the engine and, once its production goroutine has exited, releases the wake lock
// and hides the indicator.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.player.Stop()
	s.quiesce()
	return errors.Wrap(err, "service: stop")
}

// quiesce releases the wake lock and hides the indicator. Must hold mu with the engine idle.
func (s *Service) quiesce() {
	if err := s.lock.Release(); err != nil {
		s.log.WithError(err).Warn("failed to release wake lock")
	}
	if err := s.indicator.Hide(); err != nil {
		s.log.WithError(err).Warn("failed to hide indicator")
	}
}

// onStatus runs inside engine calls, possibly while mu is held by Start or Stop, so it hands
// sessions that failed on their own to a goroutine.
func (s *Service) onStatus(st engine.Status) {
	if st.State != engine.Idle || st.Err == nil {
		return
	}
	s.log.WithError(st.Err).Warn("playback ended by the engine")

	s.wgMu.Lock()
	defer s.wgMu.Unlock()
	if s.draining {
		return
	}
	s.handoffs.Add(1)
	go func() {
		defer s.handoffs.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		// a new session may have started in between
		if !s.closed && !s.player.Playing() {
			s.quiesce()
		}
	}()
}

// Requests returns the channel on which Run accepts requests.
func (s *Service) Requests() chan<- Request {
	return s.requests
}

// Run handles requests until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.requests:
			s.handle(req)
		}
	}
}

func (s *Service) handle(req Request) {
	log := s.log.WithField("action", req.Action)
	var err error
	switch req.Action {
	case s.ids.ActionStart:
		volume := DefaultVolume
		if v, ok := req.Extras[s.ids.ExtraVolume]; ok {
			if volume, err = cast.ToFloat64E(v); err != nil {
				log.WithError(err).Warn("malformed volume")
				return
			}
		}
		err = s.Start(volume)
	case s.ids.ActionStop:
		err = s.Stop()
	default:
		log.Warn("unknown request")
		return
	}
	if err != nil {
		log.WithError(err).Error("request failed")
	}
}

// Close stops playback, releases the wake lock and shuts the engine down.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	stopErr := s.player.Stop()
	s.quiesce()
	s.closed = true
	s.cancel()
	err := s.player.Shutdown()
	s.mu.Unlock()

	s.wgMu.Lock()
	s.draining = true
	s.wgMu.Unlock()
	s.handoffs.Wait()
	if stopErr != nil {
		return errors.Wrap(stopErr, "service: stop")
	}
	return errors.Wrap(err, "service: shutdown")
}
