// Package inproc provides the inproc:// transport: named in-memory endpoints
// within one process. Importing it registers the driver.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/srand/mqrpc/transport"
)

func init() {
	transport.Register("inproc", &Driver{})
}

var (
	endpointsMu sync.Mutex
	endpoints   = make(map[string]*endpoint)
)

// Driver connects requesters to routers registered under the same name.
type Driver struct{}

var _ transport.Driver = (*Driver)(nil)

func (d *Driver) Dial(ctx context.Context, name string, _ *transport.Options) (transport.Requester, error) {
	return Dial(name)
}

func (d *Driver) Listen(ctx context.Context, name string, _ *transport.Options) (transport.Router, error) {
	return Listen(name)
}

type endpoint struct {
	name     string
	incoming chan transport.Multipart
	peers    sync.Map // identity string -> *requester
	done     chan struct{}
	once     sync.Once
}

// Listen registers a Router under name.
func Listen(name string) (transport.Router, error) {
	if name == "" {
		return nil, transport.ErrNoAddress
	}

	endpointsMu.Lock()
	defer endpointsMu.Unlock()
	if _, ok := endpoints[name]; ok {
		return nil, fmt.Errorf("%w: inproc://%s", transport.ErrAddressInUse, name)
	}

	ep := &endpoint{
		name:     name,
		incoming: make(chan transport.Multipart),
		done:     make(chan struct{}),
	}
	endpoints[name] = ep
	return ep, nil
}

func (e *endpoint) RecvMultipart(ctx context.Context) (transport.Multipart, error) {
	select {
	case msg := <-e.incoming:
		return msg, nil
	case <-e.done:
		return transport.Multipart{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Multipart{}, ctx.Err()
	}
}

func (e *endpoint) SendMultipart(ctx context.Context, msg transport.Multipart) error {
	v, ok := e.peers.Load(string(msg.Identity))
	if !ok {
		return fmt.Errorf("%w: %x", transport.ErrUnknownIdentity, msg.Identity)
	}
	peer := v.(*requester)
	for _, frame := range msg.Frames {
		if err := peer.deliver(ctx, clone(frame)); err != nil {
			return err
		}
	}
	return nil
}

func (e *endpoint) Close() error {
	e.once.Do(func() {
		close(e.done)
		endpointsMu.Lock()
		if endpoints[e.name] == e {
			delete(endpoints, e.name)
		}
		endpointsMu.Unlock()
	})
	return nil
}

type requester struct {
	id       []byte
	endpoint *endpoint
	replies  chan []byte
	done     chan struct{}
	once     sync.Once
}

// Dial connects a Requester to the router registered under name.
func Dial(name string) (transport.Requester, error) {
	if name == "" {
		return nil, transport.ErrNoAddress
	}

	endpointsMu.Lock()
	ep, ok := endpoints[name]
	endpointsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: inproc://%s", transport.ErrEndpointNotFound, name)
	}

	id := uuid.New()
	r := &requester{
		id:       id[:],
		endpoint: ep,
		replies:  make(chan []byte, 1),
		done:     make(chan struct{}),
	}
	ep.peers.Store(string(r.id), r)
	return r, nil
}

func (r *requester) Send(ctx context.Context, data []byte) error {
	msg := transport.Multipart{
		Identity: r.id,
		Frames:   [][]byte{clone(data)},
	}
	select {
	case r.endpoint.incoming <- msg:
		return nil
	case <-r.done:
		return transport.ErrClosed
	case <-r.endpoint.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *requester) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-r.replies:
		return data, nil
	case <-r.done:
		return nil, transport.ErrClosed
	case <-r.endpoint.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *requester) deliver(ctx context.Context, data []byte) error {
	select {
	case r.replies <- data:
		return nil
	case <-r.done:
		return fmt.Errorf("%w: peer closed", transport.ErrUnknownIdentity)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *requester) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.endpoint.peers.Delete(string(r.id))
	})
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
