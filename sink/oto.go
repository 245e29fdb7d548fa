//go:build !malgo
// +build !malgo

package sink

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/faiface/nois"
	"github.com/faiface/nois/pcm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Backend is the name of the audio backend compiled into this build.
const Backend = "oto"

type otoDriver struct {
	latency time.Duration
	log     logrus.FieldLogger

	mu     sync.Mutex
	ctx    *oto.Context
	format nois.Format
}

// NewDriver returns the driver for the platform audio output. A zero latency selects
// DefaultLatency.
//
// The oto backend allows a single context per process, so all sinks opened by the driver
// share one format.
func NewDriver(latency time.Duration, log logrus.FieldLogger) Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &otoDriver{
		latency: latency,
		log:     log.WithField("backend", Backend),
	}
}

func (d *otoDriver) MinBufferSize(format nois.Format) (int, error) {
	return minBufferSize(format, d.latency)
}

func (d *otoDriver) Open(format nois.Format, bufferSize int) (Sink, error) {
	if _, err := d.MinBufferSize(format); err != nil {
		return nil, err
	}
	ctx, err := d.context(format, bufferSize)
	if err != nil {
		return nil, err
	}
	s := &otoSink{
		ctx:        ctx,
		bufferSize: bufferSize,
		log:        d.log,
	}
	if err := s.Transition(Ready, Uninitialized); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *otoDriver) context(format nois.Format, bufferSize int) (*oto.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx != nil {
		if d.format != format {
			return nil, nois.DeviceUnavailable(
				errors.Errorf("context already running at %v", d.format),
				"sink: oto cannot be initialized more than once")
		}
		return d.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(format.SampleRate),
		ChannelCount: format.NumChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   format.BufferPeriod(bufferSize),
	})
	if err != nil {
		return nil, nois.DeviceUnavailable(err, "sink: failed to initialize oto context")
	}
	<-ready

	d.ctx = ctx
	d.format = format
	d.log.WithField("format", format.String()).Debug("audio context ready")
	return ctx, nil
}

// otoSink turns oto's pull model into blocking writes: the player reads from a pipe, so Write
// returns only once the player has taken the whole buffer.
type otoSink struct {
	Tracker

	ctx        *oto.Context
	bufferSize int
	log        logrus.FieldLogger

	player *oto.Player
	pipe   *io.PipeWriter
	w      *pcm.Writer
	played <-chan struct{} // nil until the first write of a session
}

func (s *otoSink) BeginPlayback() error {
	if err := s.Begin(); err != nil {
		return err
	}
	pr, pw := io.Pipe()
	s.pipe = pw
	s.w = pcm.NewWriter(pw, s.bufferSize)
	s.player = s.ctx.NewPlayer(pr)
	s.player.SetBufferSize(s.bufferSize * pcm.SampleSize)
	s.played = nil
	return nil
}

func (s *otoSink) Write(samples []float32) (int, error) {
	if s.w == nil {
		return 0, errors.Wrapf(ErrInvalidTransition, "write in state %v", s.State())
	}
	var (
		n   int
		err error
	)
	if s.played == nil {
		// Play on windows reads the pipe before returning
		n, s.played, err = playAlongside(s.player.Play, func() (int, error) {
			return s.w.Write(samples)
		})
	} else {
		n, err = s.w.Write(samples)
	}
	if err != nil {
		return n, errors.Wrap(err, "sink: oto write")
	}
	select {
	case <-s.played:
		if err := s.player.Err(); err != nil {
			return n, errors.Wrap(err, "sink: oto player")
		}
	default:
		// still filling its first buffer, holding the player lock
	}
	return n, nil
}

func (s *otoSink) StopAndFlush() error {
	if !s.Halt() {
		return nil
	}
	// a Play still reading the pipe holds the player lock until it sees EOF
	s.pipe.CloseWithError(io.EOF)
	if s.played != nil {
		<-s.played
	}
	s.player.Pause()
	err := s.player.Close()
	s.player, s.pipe, s.w, s.played = nil, nil, nil, nil
	return errors.Wrap(err, "sink: oto close player")
}

// Release closes the player. The oto context itself has no Close and lives as long as the
// process.
func (s *otoSink) Release() error {
	if err := s.StopAndFlush(); err != nil {
		s.log.WithError(err).Warn("flush before release failed")
	}
	return s.Tracker.Release()
}
