package mqrpc

import (
	"context"

	"github.com/srand/mqrpc/transport"
)

// DialFunc opens the transport connection a client sends requests over.
type DialFunc func(ctx context.Context) (transport.Requester, error)

// connection owns a client's Requester. A request/reply exchange that did
// not complete leaves the requester mid-cycle, so it is marked broken and
// replaced before the next call.
type connection struct {
	dial   DialFunc
	conn   transport.Requester
	broken bool
}

func (c *connection) get(ctx context.Context) (transport.Requester, error) {
	if c.conn != nil && c.broken {
		c.conn.Close()
		c.conn = nil
	}
	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		c.broken = false
	}
	return c.conn, nil
}

func (c *connection) markBroken() {
	c.broken = true
}

func (c *connection) close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
