package sink

import (
	"time"

	"github.com/faiface/nois"
)

// DefaultLatency is the buffer period used when a driver is created with a zero latency. At
// 44.1 kHz it yields 882 samples, close to the minimum buffer of a typical platform mixer.
const DefaultLatency = 20 * time.Millisecond

// minBufferSize derives the minimum buffer size in samples from the driver latency.
func minBufferSize(format nois.Format, latency time.Duration) (int, error) {
	if err := format.Validate(); err != nil {
		return 0, nois.DeviceUnavailable(err, "sink: query buffer size")
	}
	if latency <= 0 {
		latency = DefaultLatency
	}
	n := format.SampleRate.N(latency) * format.NumChannels
	if n <= 0 {
		return 0, nois.DeviceUnavailable(nil, "sink: latency shorter than one sample")
	}
	return n, nil
}

// playAlongside runs play in its own goroutine and returns once write is done. Some backends
// fill their buffer inside play by reading the source synchronously, so play must not run ahead
// of the first write to a pipe-fed source. The returned channel is closed when play returns.
func playAlongside(play func(), write func() (int, error)) (int, <-chan struct{}, error) {
	played := make(chan struct{})
	go func() {
		defer close(played)
		play()
	}()
	n, err := write()
	return n, played, err
}
