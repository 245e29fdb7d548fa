package nois

import "github.com/pkg/errors"

var (
	// ErrDeviceUnavailable is returned when the audio subsystem cannot produce a sink for the
	// requested format. It is not retryable without a change to the environment.
	ErrDeviceUnavailable = errors.New("nois: audio device unavailable")

	// ErrEngineDisposed is returned by engine operations invoked after Shutdown.
	ErrEngineDisposed = errors.New("nois: engine disposed")
)

// WriteError is a failed buffer write to the sink. It ends the current playback session.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "nois: write to sink failed: " + e.Err.Error()
}

// Unwrap returns the underlying sink error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Cause returns the underlying sink error, for errors.Cause.
func (e *WriteError) Cause() error {
	return e.Err
}

// DeviceUnavailable wraps err so that errors.Is(err, ErrDeviceUnavailable) holds while the
// original message is kept.
func DeviceUnavailable(err error, msg string) error {
	if err == nil {
		return errors.Wrap(ErrDeviceUnavailable, msg)
	}
	return &deviceError{msg: msg, err: err}
}

type deviceError struct {
	msg string
	err error
}

func (e *deviceError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *deviceError) Unwrap() error { return e.err }

func (e *deviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}
