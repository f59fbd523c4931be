// Package common holds the yamux based Router and client session pool
// shared by the stream transports.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"github.com/srand/mqrpc/transport"
	"github.com/srand/mqrpc/transport/conn"
)

// Router serves yamux sessions. Every stream opened by a peer becomes one
// identity, so a client session carries many independent requesters.
type Router struct {
	options  *transport.Options
	logger   *zap.Logger
	incoming chan transport.Multipart
	streams  sync.Map // identity -> *conn.Conn
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	closers []io.Closer
	addr    net.Addr
}

var _ transport.Router = (*Router)(nil)

func NewRouter(options *transport.Options) *Router {
	return &Router{
		options:  options,
		logger:   options.Logger,
		incoming: make(chan transport.Multipart),
		done:     make(chan struct{}),
	}
}

// Addr returns the address of the listener passed to ServeListener.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// OnClose registers a resource released when the router closes.
func (r *Router) OnClose(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

// ServeListener accepts connections from l in a background goroutine and
// serves a yamux session on each. The listener is closed with the router.
func (r *Router) ServeListener(l net.Listener) {
	r.mu.Lock()
	r.addr = l.Addr()
	r.mu.Unlock()
	r.OnClose(l)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			c, err := l.Accept()
			if err != nil {
				select {
				case <-r.done:
				default:
					r.logger.Error("accept failed", zap.Error(err))
				}
				return
			}

			session, err := yamux.Server(c, nil)
			if err != nil {
				r.logger.Warn("yamux session failed", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
				c.Close()
				continue
			}

			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.ServeSession(session)
			}()
		}
	}()
}

// ServeSession accepts streams from session until it or the router closes.
func (r *Router) ServeSession(session *yamux.Session) {
	defer session.Close()

	r.options.Events.TriggerConnect(session.RemoteAddr().String())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-r.done:
			session.Close()
		case <-stop:
		}
	}()

	for {
		stream, err := session.Accept()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, yamux.ErrSessionShutdown) {
				r.logger.Debug("session closed", zap.Error(err))
			}
			return
		}

		id := uuid.New()
		fc := conn.New(stream, r.options.MaxFrameSize)
		r.streams.Store(id, fc)

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.serveStream(id, fc)
		}()
	}
}

func (r *Router) serveStream(id uuid.UUID, fc *conn.Conn) {
	defer func() {
		r.streams.Delete(id)
		fc.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		data, err := fc.Recv(ctx)
		if err != nil {
			return
		}

		msg := transport.Multipart{
			Identity: id[:],
			Frames:   [][]byte{data},
		}
		select {
		case r.incoming <- msg:
		case <-r.done:
			return
		}
	}
}

func (r *Router) RecvMultipart(ctx context.Context) (transport.Multipart, error) {
	select {
	case msg := <-r.incoming:
		return msg, nil
	case <-r.done:
		return transport.Multipart{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Multipart{}, ctx.Err()
	}
}

// SendMultipart writes each frame of msg to the stream named by its identity.
func (r *Router) SendMultipart(ctx context.Context, msg transport.Multipart) error {
	id, err := uuid.FromBytes(msg.Identity)
	if err != nil {
		return fmt.Errorf("%w: %x", transport.ErrUnknownIdentity, msg.Identity)
	}
	v, ok := r.streams.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownIdentity, id)
	}
	fc := v.(*conn.Conn)
	for _, frame := range msg.Frames {
		if err := fc.Send(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting, closes every session and waits for the serving
// goroutines to exit.
func (r *Router) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)

		r.mu.Lock()
		closers := r.closers
		r.mu.Unlock()

		for _, c := range closers {
			if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = errors.Join(err, cerr)
			}
		}
		r.wg.Wait()
	})
	return err
}
