package transport

import (
	"context"
	"fmt"
	"sync"
)

type replier struct {
	router Router

	mu      sync.Mutex
	pending []byte
	waiting bool
}

// NewReplier enforces the reply discipline over a Router: every Recv must be
// answered by exactly one Send before the next Recv.
func NewReplier(router Router) Replier {
	return &replier{router: router}
}

func (r *replier) Recv(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.waiting {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: previous request not answered", ErrOutOfOrder)
	}
	r.mu.Unlock()

	msg, err := r.router.RecvMultipart(ctx)
	if err != nil {
		return nil, err
	}
	if len(msg.Frames) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidFrame)
	}

	r.mu.Lock()
	r.pending = msg.Identity
	r.waiting = true
	r.mu.Unlock()

	return msg.Frames[0], nil
}

func (r *replier) Send(ctx context.Context, data []byte) error {
	r.mu.Lock()
	if !r.waiting {
		r.mu.Unlock()
		return fmt.Errorf("%w: no request to answer", ErrOutOfOrder)
	}
	identity := r.pending
	r.pending = nil
	r.waiting = false
	r.mu.Unlock()

	return r.router.SendMultipart(ctx, Multipart{
		Identity: identity,
		Frames:   [][]byte{data},
	})
}

func (r *replier) Close() error {
	return r.router.Close()
}
