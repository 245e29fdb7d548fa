// Package wav implements a sink that records the noise stream to a WAVE file.
package wav

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/faiface/nois"
	"github.com/faiface/nois/pcm"
	"github.com/faiface/nois/sink"
	"github.com/pkg/errors"
)

const (
	headerSize      = 44
	formatIEEEFloat = 3
)

type header struct {
	RiffMark      [4]byte
	FileSize      int32
	WaveMark      [4]byte
	FmtMark       [4]byte
	FormatSize    int32
	FormatType    int16
	NumChans      int16
	SampleRate    int32
	ByteRate      int32
	BytesPerFrame int16
	BitsPerSample int16
	DataMark      [4]byte
	DataSize      int32
}

// Sink writes samples to an io.WriteSeeker in WAVE format with 32-bit float samples. The
// header is finalized by Release.
//
// With a positive limit, Done is closed once limit samples have been written and further
// samples are discarded.
type Sink struct {
	sink.Tracker

	w     io.WriteSeeker
	bw    *bufio.Writer
	h     header
	limit int
	buf   []byte

	mu       sync.Mutex
	written  int
	done     chan struct{}
	doneOnce sync.Once
}

// NewSink writes a provisional header to w and returns a sink in the Ready state.
func NewSink(w io.WriteSeeker, format nois.Format, limit int) (s *Sink, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "wav")
		}
	}()

	if err := format.Validate(); err != nil {
		return nil, err
	}

	s = &Sink{
		w:     w,
		bw:    bufio.NewWriter(w),
		limit: limit,
		done:  make(chan struct{}),
		h: header{
			RiffMark:      [4]byte{'R', 'I', 'F', 'F'},
			FileSize:      -1, // finalization
			WaveMark:      [4]byte{'W', 'A', 'V', 'E'},
			FmtMark:       [4]byte{'f', 'm', 't', ' '},
			FormatSize:    16,
			FormatType:    formatIEEEFloat,
			NumChans:      int16(format.NumChannels),
			SampleRate:    int32(format.SampleRate),
			ByteRate:      int32(int(format.SampleRate) * format.Width()),
			BytesPerFrame: int16(format.Width()),
			BitsPerSample: int16(format.SampleFormat.Size()) * 8,
			DataMark:      [4]byte{'d', 'a', 't', 'a'},
			DataSize:      -1, // finalization
		},
	}
	if err := binary.Write(w, binary.LittleEndian, &s.h); err != nil {
		return nil, err
	}
	if err := s.Transition(sink.Ready, sink.Uninitialized); err != nil {
		return nil, err
	}
	return s, nil
}

// Done is closed once the sample limit has been reached.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Written returns the number of samples recorded so far.
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Sink) BeginPlayback() error {
	return s.Begin()
}

// Write records samples up to the limit. It reports the whole buffer as written, including
// samples discarded past the limit.
func (s *Sink) Write(samples []float32) (int, error) {
	if st := s.State(); st != sink.Playing {
		return 0, errors.Wrapf(sink.ErrInvalidTransition, "wav: write in state %v", st)
	}

	s.mu.Lock()
	keep := samples
	if s.limit > 0 {
		if room := s.limit - s.written; room < len(keep) {
			keep = keep[:room]
		}
	}
	s.written += len(keep)
	reached := s.limit > 0 && s.written >= s.limit
	s.mu.Unlock()

	if need := len(keep) * pcm.SampleSize; len(s.buf) < need {
		s.buf = make([]byte, need)
	}
	n := pcm.EncodeFloat32(s.buf, keep)
	if _, err := s.bw.Write(s.buf[:n]); err != nil {
		return 0, errors.Wrap(err, "wav")
	}
	if reached {
		s.doneOnce.Do(func() { close(s.done) })
	}
	return len(samples) * pcm.SampleSize, nil
}

func (s *Sink) StopAndFlush() error {
	if !s.Halt() {
		return nil
	}
	return errors.Wrap(s.bw.Flush(), "wav")
}

// Release flushes pending samples, finalizes the header and closes the writer if it is an
// io.Closer.
func (s *Sink) Release() (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "wav")
		}
	}()

	if err := s.Tracker.Release(); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		return err
	}

	data := s.Written() * pcm.SampleSize
	s.h.FileSize = int32(headerSize - 8 + data)
	s.h.DataSize = int32(data)
	if _, err := s.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(s.w, binary.LittleEndian, &s.h); err != nil {
		return err
	}
	if _, err := s.w.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Driver opens a single WAVE file sink at Path. It lets the engine render offline.
type Driver struct {
	Path string

	// Duration limits the recording. Zero records until the engine stops.
	Duration time.Duration

	mu   sync.Mutex
	sink *Sink
}

// MinBufferSize returns the number of samples in sink.DefaultLatency.
func (d *Driver) MinBufferSize(format nois.Format) (int, error) {
	if err := format.Validate(); err != nil {
		return 0, nois.DeviceUnavailable(err, "wav")
	}
	return format.SampleRate.N(sink.DefaultLatency) * format.NumChannels, nil
}

// Open creates the file. The driver can open a single sink.
func (d *Driver) Open(format nois.Format, bufferSize int) (sink.Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sink != nil {
		return nil, nois.DeviceUnavailable(errors.New("file already open"), "wav")
	}
	f, err := os.Create(d.Path)
	if err != nil {
		return nil, nois.DeviceUnavailable(err, "wav")
	}
	s, err := NewSink(f, format, format.SampleRate.N(d.Duration)*format.NumChannels)
	if err != nil {
		f.Close()
		return nil, nois.DeviceUnavailable(err, "wav")
	}
	d.sink = s
	return s, nil
}

// Sink returns the sink opened by the driver, or nil.
func (d *Driver) Sink() *Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink
}
