package nois

import (
	"fmt"
	"math"
	"time"
)

// SampleRate is the number of samples per second.
type SampleRate int

// D returns the duration of n samples.
func (sr SampleRate) D(n int) time.Duration {
	return time.Second * time.Duration(n) / time.Duration(sr)
}

// N returns the number of samples that last for d duration.
func (sr SampleRate) N(d time.Duration) int {
	return int(d * time.Duration(sr) / time.Second)
}

// SampleFormat is the encoding of a single sample of a single channel.
type SampleFormat int

const (
	// Float32 is a 32-bit IEEE 754 float sample in the range [-1, 1].
	Float32 SampleFormat = iota + 1
)

// Size returns the number of bytes used to encode one sample in this format.
func (sf SampleFormat) Size() int {
	switch sf {
	case Float32:
		return 4
	default:
		return 0
	}
}

func (sf SampleFormat) String() string {
	switch sf {
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(sf))
	}
}

// Format is the format of the stream produced by the engine and accepted by a sink.
type Format struct {
	// SampleRate is the number of samples per second.
	SampleRate SampleRate

	// NumChannels is the number of channels. The value of 1 is mono, the value of 2 is stereo.
	// The samples should always be interleaved.
	NumChannels int

	// SampleFormat is the encoding of a single sample.
	SampleFormat SampleFormat
}

// DefaultFormat is the format used by the noise generator: 44.1 kHz mono float32.
var DefaultFormat = Format{
	SampleRate:   44100,
	NumChannels:  1,
	SampleFormat: Float32,
}

// Width returns the number of bytes per one frame (all channels).
//
// This is equal to f.NumChannels * f.SampleFormat.Size().
func (f Format) Width() int {
	return f.NumChannels * f.SampleFormat.Size()
}

// Validate reports whether the format can be produced by the engine.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("format: invalid sample rate: %d", f.SampleRate)
	case f.NumChannels != 1:
		return fmt.Errorf("format: unsupported number of channels: %d", f.NumChannels)
	case f.SampleFormat != Float32:
		return fmt.Errorf("format: unsupported sample format: %v", f.SampleFormat)
	}
	return nil
}

// BufferPeriod returns the real-time duration of a buffer holding n samples.
func (f Format) BufferPeriod(n int) time.Duration {
	if f.NumChannels <= 0 {
		return 0
	}
	return f.SampleRate.D(n / f.NumChannels)
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %v", f.SampleRate, f.NumChannels, f.SampleFormat)
}

// ClampVolume clamps v to [0, 1]. NaN is treated as silence.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
