// Package pcm implements raw PCM encoding of float32 samples.
package pcm

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// SampleSize is the number of bytes taken by one float32 sample.
const SampleSize = 4

// EncodeFloat32 encodes samples into p as little-endian IEEE 754 floats and returns the number
// of bytes written. p must be at least len(samples)*SampleSize bytes long. Samples are clamped
// to [-1, 1].
func EncodeFloat32(p []byte, samples []float32) (n int) {
	for _, s := range samples {
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(norm(s)))
		n += SampleSize
	}
	return n
}

// DecodeFloat32 decodes little-endian IEEE 754 floats from p into samples and returns the
// number of samples decoded. Trailing bytes that do not form a full sample are ignored.
func DecodeFloat32(samples []float32, p []byte) (n int) {
	for n < len(samples) && (n+1)*SampleSize <= len(p) {
		samples[n] = math.Float32frombits(binary.LittleEndian.Uint32(p[n*SampleSize:]))
		n++
	}
	return n
}

// Writer encodes float32 samples onto an io.Writer, reusing one byte buffer between calls.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer with room for size samples per call before it has to grow.
func NewWriter(w io.Writer, size int) *Writer {
	return &Writer{w: w, buf: make([]byte, size*SampleSize)}
}

// Write encodes samples and writes them to the underlying writer. It returns the number of
// bytes written and blocks for as long as the underlying writer blocks.
func (pw *Writer) Write(samples []float32) (int, error) {
	if need := len(samples) * SampleSize; len(pw.buf) < need {
		pw.buf = make([]byte, need)
	}
	n := EncodeFloat32(pw.buf, samples)
	written, err := pw.w.Write(pw.buf[:n])
	if err != nil {
		return written, errors.Wrap(err, "pcm")
	}
	return written, nil
}

func norm(x float32) float32 {
	if x < -1 {
		return -1
	}
	if x > +1 {
		return +1
	}
	return x
}
