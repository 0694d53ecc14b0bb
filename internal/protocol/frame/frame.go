package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// HeaderLen is the size of the big-endian length prefix.
const HeaderLen = 4

var (
	ErrShortHeader      = errors.New("frame: short length header")
	ErrShortPayload     = errors.New("frame: short payload")
	ErrLengthOutOfRange = errors.New("frame: length out of range")
)

// Limits bounds the payload length accepted on read and write.
type Limits struct {
	MinLen uint32
	MaxLen uint32
}

func DefaultLimits() Limits {
	return Limits{
		MinLen: 1,
		MaxLen: 1 << 16,
	}
}

func (l Limits) check(n uint64) error {
	if n < uint64(l.MinLen) || n > uint64(l.MaxLen) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrLengthOutOfRange, n, l.MinLen, l.MaxLen)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload. The returned slice is owned by
// the caller and sized exactly to the advertised length.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrShortHeader, err)
		}
		return nil, err
	}

	n := DecodeHeader(hdr)
	if err := limits.check(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShortPayload, err)
	}
	return payload, nil
}

// WriteFrame writes the length prefix and payload as one gathered write so a
// TCP conn sends them together.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if err := limits.check(uint64(len(payload))); err != nil {
		return err
	}
	hdr := EncodeHeader(uint32(len(payload)))
	bufs := net.Buffers{hdr[:], payload}
	if _, err := bufs.WriteTo(w); err != nil {
		return err
	}
	return nil
}

func EncodeHeader(n uint32) [HeaderLen]byte {
	var b [HeaderLen]byte
	binary.BigEndian.PutUint32(b[:], n)
	return b
}

func DecodeHeader(b [HeaderLen]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}
