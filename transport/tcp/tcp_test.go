package tcp

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srand/mqrpc/transport"
)

type addresser interface {
	Addr() net.Addr
}

// echo answers every request with its payload until the router closes.
func echo(router transport.Router) {
	for {
		msg, err := router.RecvMultipart(context.Background())
		if err != nil {
			return
		}
		router.SendMultipart(context.Background(), msg)
	}
}

func roundTrip(t *testing.T, requester transport.Requester, payload string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, requester.Send(ctx, []byte(payload)))
	data, err := requester.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func listen(t *testing.T, d *Driver, addr string, opts ...transport.Option) (transport.Router, string) {
	t.Helper()

	options, err := transport.NewOptions(opts...)
	require.NoError(t, err)
	router, err := d.Listen(context.Background(), addr, options)
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	go echo(router)
	return router, router.(addresser).Addr().String()
}

func dial(t *testing.T, d *Driver, addr string, opts ...transport.Option) transport.Requester {
	t.Helper()

	options, err := transport.NewOptions(opts...)
	require.NoError(t, err)
	requester, err := d.Dial(context.Background(), addr, options)
	require.NoError(t, err)
	t.Cleanup(func() { requester.Close() })
	return requester
}

func TestTCPRoundTrip(t *testing.T) {
	d := NewDriver("tcp")

	var accepted atomic.Int32
	_, addr := listen(t, d, "127.0.0.1:0", transport.WithOnConnect(func(string) { accepted.Add(1) }))

	requester := dial(t, d, addr)
	roundTrip(t, requester, "hello")
	roundTrip(t, requester, "again")

	assert.Equal(t, int32(1), accepted.Load())
}

func TestSessionIsShared(t *testing.T) {
	d := NewDriver("tcp")

	var accepted atomic.Int32
	_, addr := listen(t, d, "127.0.0.1:0", transport.WithOnConnect(func(string) { accepted.Add(1) }))

	first := dial(t, d, addr)
	second := dial(t, d, addr)
	assert.Equal(t, 1, d.pool.Len())

	roundTrip(t, second, "two")
	roundTrip(t, first, "one")
	assert.Equal(t, int32(1), accepted.Load())

	require.NoError(t, first.Close())
	assert.Equal(t, 1, d.pool.Len())
	roundTrip(t, second, "still open")

	require.NoError(t, second.Close())
	assert.Zero(t, d.pool.Len())
}

func TestUnixSocket(t *testing.T) {
	d := NewDriver("unix")
	path := filepath.Join(t.TempDir(), "mqrpc.sock")

	listen(t, d, path)
	roundTrip(t, dial(t, d, path), "over a socket")
}

func TestTLS(t *testing.T) {
	d := NewDriver("tcp")

	_, addr := listen(t, d, "127.0.0.1:0", transport.WithSelfSignedCert())
	roundTrip(t, dial(t, d, addr, transport.WithSelfSignedCert()), "secret")
}

func TestRouterClose(t *testing.T) {
	d := NewDriver("tcp")

	options, err := transport.NewOptions()
	require.NoError(t, err)
	router, err := d.Listen(context.Background(), "127.0.0.1:0", options)
	require.NoError(t, err)
	addr := router.(addresser).Addr().String()

	requester := dial(t, d, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, requester.Send(ctx, []byte("pending")))

	msg, err := router.RecvMultipart(ctx)
	require.NoError(t, err)

	require.NoError(t, router.Close())
	_, err = router.RecvMultipart(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)

	_, err = requester.Recv(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)

	err = router.SendMultipart(ctx, transport.Multipart{Identity: []byte("short"), Frames: msg.Frames})
	assert.ErrorIs(t, err, transport.ErrUnknownIdentity)
}

func TestDialErrors(t *testing.T) {
	d := NewDriver("tcp")
	options, err := transport.NewOptions(transport.WithConnectTimeout(time.Second))
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), "", options)
	assert.ErrorIs(t, err, transport.ErrNoAddress)

	_, err = d.Listen(context.Background(), "", options)
	assert.ErrorIs(t, err, transport.ErrNoAddress)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = d.Dial(context.Background(), addr, options)
	assert.Error(t, err)
	assert.Zero(t, d.pool.Len())
}
