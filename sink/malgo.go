//go:build malgo
// +build malgo

package sink

import (
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/pcm"
	"github.com/gen2brain/malgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// Backend is the name of the audio backend compiled into this build.
const Backend = "malgo"

// errReleased unblocks writers stuck on a released sink.
var errReleased = errors.New("sink: released")

type malgoDriver struct {
	latency time.Duration
	log     logrus.FieldLogger
}

// NewDriver returns the driver for the platform audio output. A zero latency selects
// DefaultLatency.
func NewDriver(latency time.Duration, log logrus.FieldLogger) Driver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &malgoDriver{
		latency: latency,
		log:     log.WithField("backend", Backend),
	}
}

func (d *malgoDriver) MinBufferSize(format nois.Format) (int, error) {
	return minBufferSize(format, d.latency)
}

func (d *malgoDriver) Open(format nois.Format, bufferSize int) (Sink, error) {
	if _, err := d.MinBufferSize(format); err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		d.log.Debug(message)
	})
	if err != nil {
		return nil, nois.DeviceUnavailable(err, "sink: failed to initialize malgo context")
	}

	s := &malgoSink{
		ctx: ctx,
		// two buffers of headroom keep the device fed while the producer fills the next one
		queue: ringbuffer.New(2 * bufferSize * pcm.SampleSize).SetBlocking(true),
		buf:   make([]byte, bufferSize*pcm.SampleSize),
		log:   d.log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(format.NumChannels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(bufferSize / format.NumChannels)
	deviceConfig.Alsa.NoMMap = 1

	s.device, err = malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onSamples,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, nois.DeviceUnavailable(err, "sink: failed to initialize malgo device")
	}

	if err := s.Transition(Ready, Uninitialized); err != nil {
		return nil, err
	}
	return s, nil
}

type malgoSink struct {
	Tracker

	ctx    *malgo.AllocatedContext
	device *malgo.Device
	queue  *ringbuffer.RingBuffer
	buf    []byte
	log    logrus.FieldLogger
}

// onSamples runs on the device thread and must never block: missing data is played as silence.
func (s *malgoSink) onSamples(pOutputSample, pInputSamples []byte, framecount uint32) {
	n, _ := s.queue.TryRead(pOutputSample)
	for i := n; i < len(pOutputSample); i++ {
		pOutputSample[i] = 0
	}
}

func (s *malgoSink) BeginPlayback() error {
	if err := s.Begin(); err != nil {
		return err
	}
	if err := s.device.Start(); err != nil {
		s.Halt()
		return errors.Wrap(err, "sink: malgo start")
	}
	return nil
}

func (s *malgoSink) Write(samples []float32) (int, error) {
	if need := len(samples) * pcm.SampleSize; len(s.buf) < need {
		s.buf = make([]byte, need)
	}
	n := pcm.EncodeFloat32(s.buf, samples)
	written, err := s.queue.Write(s.buf[:n])
	if err != nil {
		return written, errors.Wrap(err, "sink: malgo write")
	}
	return written, nil
}

func (s *malgoSink) StopAndFlush() error {
	if !s.Halt() {
		return nil
	}
	err := s.device.Stop()
	s.queue.Reset()
	return errors.Wrap(err, "sink: malgo stop")
}

func (s *malgoSink) Release() error {
	if err := s.StopAndFlush(); err != nil {
		s.log.WithError(err).Warn("flush before release failed")
	}
	if err := s.Tracker.Release(); err != nil {
		return err
	}
	s.queue.CloseWithError(errReleased)
	s.device.Uninit()
	err := s.ctx.Uninit()
	s.ctx.Free()
	return errors.Wrap(err, "sink: malgo release")
}
