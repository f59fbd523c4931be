// Package http provides the ws:// transport: yamux sessions over websockets.
// Importing it registers the driver.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/srand/mqrpc/transport"
	"github.com/srand/mqrpc/transport/common"
)

func init() {
	transport.Register("ws", NewDriver())
}

// Driver dials and serves websocket endpoints. Addresses are host:port/path.
type Driver struct {
	pool *common.Pool
}

var _ transport.Driver = (*Driver)(nil)

func NewDriver() *Driver {
	return &Driver{pool: common.NewPool()}
}

func endpointURL(addr string, secure bool) (*url.URL, error) {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u, err := url.Parse(scheme + "://" + addr)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, transport.ErrNoAddress
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func (d *Driver) Dial(ctx context.Context, addr string, options *transport.Options) (transport.Requester, error) {
	u, err := endpointURL(addr, options.TLSConfig != nil)
	if err != nil {
		return nil, err
	}

	dial := func(ctx context.Context) (net.Conn, error) {
		config, err := websocket.NewConfig(u.String(), options.Origin)
		if err != nil {
			return nil, err
		}
		config.TlsConfig = options.TLSConfig
		config.Dialer = &net.Dialer{Timeout: options.ConnectTimeout}

		ws, err := config.DialContext(ctx)
		if err != nil {
			return nil, err
		}
		ws.PayloadType = websocket.BinaryFrame
		return ws, nil
	}

	return d.pool.Open(ctx, u.String(), dial, options)
}

func (d *Driver) Listen(ctx context.Context, addr string, options *transport.Options) (transport.Router, error) {
	u, err := endpointURL(addr, options.TLSConfig != nil)
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return nil, err
	}

	router := common.NewRouter(options)

	mux := http.NewServeMux()
	mux.Handle(u.Path, NewHandler(router, options.Logger))

	server := &http.Server{
		Handler:   mux,
		TLSConfig: options.TLSConfig,
	}
	router.OnClose(server)

	go func() {
		var err error
		if options.TLSConfig != nil {
			err = server.ServeTLS(l, "", "")
		} else {
			err = server.Serve(l)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			options.Logger.Error("websocket server stopped", zap.Error(err))
		}
	}()

	return &listener{Router: router, addr: l.Addr()}, nil
}

// listener exposes the bound address of a websocket router.
type listener struct {
	*common.Router
	addr net.Addr
}

func (l *listener) Addr() net.Addr {
	return l.addr
}
