// Package transport defines the frame transports mqrpc runs over and a
// registry of drivers selected by address scheme.
package transport

import "context"

// Conn carries whole frames. Blocking is bounded by the context passed to
// each call.
type Conn interface {
	// Send transmits one frame.
	Send(ctx context.Context, data []byte) error

	// Recv blocks until a frame arrives.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the connection.
	// Any blocked Send or Recv operations will be unblocked and return errors.
	Close() error
}

// Requester is the client end of a strict request/reply exchange: one Send,
// then one Recv.
type Requester interface {
	Conn
}

// Replier is the server end of a strict request/reply exchange: one Recv,
// then one Send answering it.
type Replier interface {
	Conn
}

// Multipart is a message received by or sent from a Router. Identity names
// the peer it came from or is addressed to.
type Multipart struct {
	Identity []byte
	Frames   [][]byte
}

// Router receives messages from many peers and routes replies back by identity.
//
// RecvMultipart and SendMultipart may be called from different goroutines,
// but each must have a single caller at a time.
type Router interface {
	RecvMultipart(ctx context.Context) (Multipart, error)
	SendMultipart(ctx context.Context, msg Multipart) error
	Close() error
}
