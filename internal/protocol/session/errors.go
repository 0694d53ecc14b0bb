package session

import (
	"errors"

	"github.com/danmuck/mocapctl/internal/protocol/frame"
	"github.com/danmuck/mocapctl/internal/protocol/measurement"
)

var (
	ErrHandshake         = errors.New("session: handshake frame is not metadata")
	ErrWatchdogExpired   = errors.New("session: watchdog deadline expired")
	ErrClosed            = errors.New("session: stream closed")
	ErrNotStreaming      = errors.New("session: stream is not streaming")
	ErrUnexpectedDataLen = errors.New("session: data frame size does not match negotiated record size")
)

// IsProtocol reports whether err is a peer protocol violation. These are
// fatal for the session and never retried.
func IsProtocol(err error) bool {
	return errors.Is(err, frame.ErrLengthOutOfRange) ||
		errors.Is(err, ErrHandshake) ||
		errors.Is(err, measurement.ErrLengthMismatch) ||
		errors.Is(err, ErrUnexpectedDataLen)
}

// IsTimeout reports whether err came from the watchdog closing the stream.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrWatchdogExpired)
}
