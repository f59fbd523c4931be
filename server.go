package mqrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/srand/mqrpc/transport"
)

// Coordinator is the lifecycle of a server bound to an endpoint.
type Coordinator interface {
	// Start begins serving in the background.
	Start() error

	// Stop cancels background work, waits for it and releases the endpoint.
	// It is safe to call more than once.
	Stop() error
}

var (
	_ Coordinator = (*Server)(nil)
	_ Coordinator = (*ConcurrentServer)(nil)
)

// Server serves requests one at a time from a Replier.
type Server struct {
	dispatcher *Dispatcher
	replier    transport.Replier
	logger     *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// NewServer binds target, implementing contract, to replier.
func NewServer(contract *Contract, target any, replier transport.Replier, opts ...Option) (*Server, error) {
	if replier == nil {
		return nil, fmt.Errorf("replier cannot be nil")
	}
	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(contract, target, options)
	if err != nil {
		return nil, err
	}
	return &Server{
		dispatcher: dispatcher,
		replier:    replier,
		logger:     dispatcher.logger,
		done:       make(chan struct{}),
	}, nil
}

// Listen binds target to addr and starts a Server.
func Listen(ctx context.Context, contract *Contract, target any, addr string, opts ...Option) (*Server, error) {
	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	replier, err := transport.ListenReply(ctx, addr, options.Transport...)
	if err != nil {
		return nil, err
	}

	s, err := NewServer(contract, target, replier, opts...)
	if err != nil {
		replier.Close()
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrClosed
	}
	if s.started {
		return errors.New("server already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.serve(ctx)
	return nil
}

func (s *Server) serve(ctx context.Context) {
	defer close(s.done)

	var delay retryDelay
	for {
		frame, err := s.replier.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			s.logger.Warn("receive failed", zap.Error(err), zap.Duration("retryIn", delay.peek()))
			if !delay.wait(ctx) {
				return
			}
			continue
		}
		delay.reset()

		reply := s.dispatcher.HandleFrame(ctx, frame)

		if err := s.replier.Send(ctx, reply); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			s.logger.Warn("send failed", zap.Error(err))
		}
	}
}

// HandleMessage dispatches req synchronously, bypassing the transport.
// After Stop it answers with a fault.
func (s *Server) HandleMessage(ctx context.Context, req *Request) *Response {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return faultResponse(req.ID, ErrClosed)
	}
	return s.dispatcher.Dispatch(ctx, req)
}

func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-s.done
		}
		s.dispatcher.Wait()
		s.stopErr = s.replier.Close()
	})
	return s.stopErr
}

const (
	minRetryDelay = 10 * time.Millisecond
	maxRetryDelay = time.Second
)

// retryDelay paces a receive loop after transport failures, doubling the
// pause on each consecutive failure up to maxRetryDelay.
type retryDelay struct {
	next time.Duration
}

func (r *retryDelay) peek() time.Duration {
	if r.next == 0 {
		return minRetryDelay
	}
	return r.next
}

// wait pauses and reports false if ctx ended first.
func (r *retryDelay) wait(ctx context.Context) bool {
	d := r.peek()
	r.next = min(2*d, maxRetryDelay)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *retryDelay) reset() {
	r.next = 0
}
