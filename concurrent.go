package mqrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/srand/mqrpc/transport"
)

// replyTimeout bounds each write of the sender goroutine.
const replyTimeout = 5 * time.Second

// ConcurrentServer serves requests from many callers over a Router.
//
// One goroutine receives into a bounded queue, a fixed pool of workers
// dispatches, and one goroutine owns all writes to the router. Replies keep
// the identity of the request they answer; their order across callers is
// not preserved.
type ConcurrentServer struct {
	dispatcher *Dispatcher
	router     transport.Router
	logger     *zap.Logger
	workers    int
	queueSize  int

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	stopOnce sync.Once
	stopErr  error
}

// NewConcurrentServer binds target, implementing contract, to router.
func NewConcurrentServer(contract *Contract, target any, router transport.Router, opts ...Option) (*ConcurrentServer, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(contract, target, options)
	if err != nil {
		return nil, err
	}
	return &ConcurrentServer{
		dispatcher: dispatcher,
		router:     router,
		logger:     dispatcher.logger,
		workers:    options.Workers,
		queueSize:  options.QueueSize,
	}, nil
}

// ListenConcurrent binds target to addr and starts a ConcurrentServer.
func ListenConcurrent(ctx context.Context, contract *Contract, target any, addr string, opts ...Option) (*ConcurrentServer, error) {
	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	router, err := transport.ListenRouter(ctx, addr, options.Transport...)
	if err != nil {
		return nil, err
	}

	s, err := NewConcurrentServer(contract, target, router, opts...)
	if err != nil {
		router.Close()
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *ConcurrentServer) Start() error {
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

	requests := make(chan transport.Multipart, s.queueSize)
	replies := make(chan transport.Multipart, s.queueSize)

	s.group = &errgroup.Group{}
	s.group.Go(func() error {
		defer close(requests)
		return s.receive(ctx, requests)
	})

	workers := &errgroup.Group{}
	for i := 0; i < s.workers; i++ {
		workers.Go(func() error {
			// Queued work drains after Stop, so dispatch ignores cancellation.
			return s.work(context.WithoutCancel(ctx), requests, replies)
		})
	}
	s.group.Go(func() error {
		defer close(replies)
		return workers.Wait()
	})

	s.group.Go(func() error {
		return s.send(replies)
	})

	s.logger.Info("concurrent server started", zap.Int("workers", s.workers), zap.Int("queueSize", s.queueSize))
	return nil
}

func (s *ConcurrentServer) receive(ctx context.Context, requests chan<- transport.Multipart) error {
	var delay retryDelay
	for {
		msg, err := s.router.RecvMultipart(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			s.logger.Warn("receive failed", zap.Error(err), zap.Duration("retryIn", delay.peek()))
			if !delay.wait(ctx) {
				return nil
			}
			continue
		}
		delay.reset()
		requests <- msg
	}
}

func (s *ConcurrentServer) work(ctx context.Context, requests <-chan transport.Multipart, replies chan<- transport.Multipart) error {
	for msg := range requests {
		if len(msg.Frames) == 0 {
			s.logger.Warn("empty message", zap.Binary("identity", msg.Identity))
			continue
		}
		reply := s.dispatcher.HandleFrame(ctx, msg.Frames[len(msg.Frames)-1])
		replies <- transport.Multipart{
			Identity: msg.Identity,
			Frames:   [][]byte{reply},
		}
	}
	return nil
}

func (s *ConcurrentServer) send(replies <-chan transport.Multipart) error {
	for msg := range replies {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		err := s.router.SendMultipart(ctx, msg)
		cancel()
		if err != nil {
			s.logger.Warn("send failed", zap.Binary("identity", msg.Identity), zap.Error(err))
		}
	}
	return nil
}

func (s *ConcurrentServer) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel, group := s.cancel, s.group
		s.mu.Unlock()

		var err error
		if cancel != nil {
			cancel()
			err = group.Wait()
		}
		s.dispatcher.Wait()
		s.stopErr = errors.Join(err, s.router.Close())
	})
	return s.stopErr
}
