package mqrpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srand/mqrpc/transport"
)

// failingRouter fails every receive with a transient error.
type failingRouter struct {
	recvs atomic.Int64
}

func (r *failingRouter) RecvMultipart(ctx context.Context) (transport.Multipart, error) {
	r.recvs.Add(1)
	return transport.Multipart{}, errors.New("connection reset")
}

func (r *failingRouter) SendMultipart(ctx context.Context, msg transport.Multipart) error {
	return nil
}

func (r *failingRouter) Close() error { return nil }

func TestReceiveFailuresBackOff(t *testing.T) {
	start := map[string]func(router transport.Router) (func() error, error){
		"direct": func(router transport.Router) (func() error, error) {
			s, err := NewServer(geometryContract, newGeometry(), transport.NewReplier(router))
			if err != nil {
				return nil, err
			}
			return s.Stop, s.Start()
		},
		"concurrent": func(router transport.Router) (func() error, error) {
			s, err := NewConcurrentServer(geometryContract, newGeometry(), router)
			if err != nil {
				return nil, err
			}
			return s.Stop, s.Start()
		},
	}

	for name, run := range start {
		t.Run(name, func(t *testing.T) {
			router := &failingRouter{}
			stop, err := run(router)
			require.NoError(t, err)

			time.Sleep(150 * time.Millisecond)
			require.NoError(t, stop())

			// 10ms, 20ms, 40ms, 80ms fit in the window.
			assert.Positive(t, router.recvs.Load())
			assert.Less(t, router.recvs.Load(), int64(10))
		})
	}
}

func TestRetryDelay(t *testing.T) {
	var delay retryDelay
	assert.Equal(t, minRetryDelay, delay.peek())

	for i := 0; i < 3; i++ {
		require.True(t, delay.wait(context.Background()))
	}
	assert.Equal(t, 8*minRetryDelay, delay.peek())

	delay.next = maxRetryDelay
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, delay.wait(ctx))
	assert.Equal(t, maxRetryDelay, delay.peek())

	delay.reset()
	assert.Equal(t, minRetryDelay, delay.peek())
}

func TestDispatchAsyncAfterWait(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)
	d.Wait()

	req := decodedRequest(t, matcher, "Fire", `{"event":"late"}`)
	req.Async = true

	resp := d.Dispatch(context.Background(), req)
	require.True(t, resp.Faulted())
	assert.Contains(t, resp.Exception.Message, ErrClosed.Error())
	assert.Zero(t, target.calls.Load())
}
