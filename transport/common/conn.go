package common

import (
	"context"
	"net"
	"sync"

	"github.com/hashicorp/yamux"

	"github.com/srand/mqrpc/transport"
	"github.com/srand/mqrpc/transport/conn"
)

// DialFunc opens the underlying connection of a client session.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Pool shares one yamux client session per address between requesters.
// A session is closed when its last stream is.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*pooledSession
}

type pooledSession struct {
	session *yamux.Session
	refs    int
}

func NewPool() *Pool {
	return &Pool{sessions: make(map[string]*pooledSession)}
}

// Open opens a stream on the session for key, dialing a new session when
// there is none or the previous one died. Dialing happens outside the pool
// lock, so a slow address does not hold up the others.
func (p *Pool) Open(ctx context.Context, key string, dial DialFunc, options *transport.Options) (transport.Requester, error) {
	ps, err := p.acquire(ctx, key, dial, options)
	if err != nil {
		return nil, err
	}

	stream, err := ps.session.Open()
	if err != nil {
		p.release(key, ps)
		return nil, err
	}

	return &pooledConn{
		Conn: conn.New(stream, options.MaxFrameSize),
		release: func() {
			p.release(key, ps)
		},
	}, nil
}

// acquire returns the session for key with a reference held.
func (p *Pool) acquire(ctx context.Context, key string, dial DialFunc, options *transport.Options) (*pooledSession, error) {
	p.mu.Lock()
	if ps := p.live(key); ps != nil {
		ps.refs++
		p.mu.Unlock()
		return ps, nil
	}
	p.mu.Unlock()

	c, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	session, err := yamux.Client(c, nil)
	if err != nil {
		c.Close()
		return nil, err
	}

	p.mu.Lock()
	if ps := p.live(key); ps != nil {
		// Lost the race to a concurrent dial.
		ps.refs++
		p.mu.Unlock()
		session.Close()
		return ps, nil
	}
	ps := &pooledSession{session: session, refs: 1}
	p.sessions[key] = ps
	p.mu.Unlock()

	options.Events.TriggerConnect(c.RemoteAddr().String())
	return ps, nil
}

// live returns the open session for key, forgetting a dead one.
// Callers hold p.mu.
func (p *Pool) live(key string) *pooledSession {
	ps, ok := p.sessions[key]
	if !ok {
		return nil
	}
	if ps.session.IsClosed() {
		delete(p.sessions, key)
		return nil
	}
	return ps
}

// Len returns the number of open sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pool) release(key string, ps *pooledSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps.refs--
	if ps.refs > 0 {
		return
	}
	ps.session.Close()
	if p.sessions[key] == ps {
		delete(p.sessions, key)
	}
}

type pooledConn struct {
	*conn.Conn
	once    sync.Once
	release func()
}

func (c *pooledConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}
