package conn

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/srand/mqrpc/transport"
)

// Frame header: 3 magic bytes "mqr", a version byte and a big-endian
// uint32 body length.
const (
	magic0     byte = 'm'
	magic1     byte = 'q'
	magic2     byte = 'r'
	Version    byte = 0x01
	HeaderSize      = 8
)

// WriteFrame writes one frame to w. Concurrent writers must be serialized
// by the caller.
func WriteFrame(w io.Writer, data []byte) error {
	buf := make([]byte, HeaderSize+len(data))
	buf[0], buf[1], buf[2] = magic0, magic1, magic2
	buf[3] = Version
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[HeaderSize:], data)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r, rejecting bodies larger than max.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != magic0 || header[1] != magic1 || header[2] != magic2 {
		return nil, fmt.Errorf("%w: bad magic %x", transport.ErrInvalidFrame, header[0:3])
	}
	if header[3] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", transport.ErrInvalidFrame, header[3])
	}

	n := binary.BigEndian.Uint32(header[4:8])
	if max > 0 && n > max {
		return nil, fmt.Errorf("%w: %d > %d bytes", transport.ErrFrameTooLarge, n, max)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
