// Package conn carries length-prefixed frames over stream connections.
package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/srand/mqrpc/transport"
)

// Conn is a frame connection over a net.Conn. A background goroutine reads
// frames so Recv can honor its context.
type Conn struct {
	conn     net.Conn
	maxFrame uint32
	writeMu  sync.Mutex
	receiver chan []byte
	done     chan struct{}
	err      error
	once     sync.Once
}

var _ transport.Conn = (*Conn)(nil)

func New(conn net.Conn, maxFrame uint32) *Conn {
	c := &Conn{
		conn:     conn,
		maxFrame: maxFrame,
		receiver: make(chan []byte),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) Send(ctx context.Context, data []byte) error {
	if data == nil {
		return errors.New("data is nil")
	}

	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	if err := WriteFrame(c.conn, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.receiver:
		if !ok {
			return nil, c.err
		}
		return data, nil
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) run() {
	defer close(c.receiver)
	for {
		data, err := ReadFrame(c.conn, c.maxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.err = transport.ErrClosed
			} else {
				c.err = fmt.Errorf("%w: %w", transport.ErrClosed, err)
			}
			return
		}

		select {
		case c.receiver <- data:
		case <-c.done:
			c.err = transport.ErrClosed
			return
		}
	}
}
