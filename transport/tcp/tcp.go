// Package tcp provides the tcp:// transport: yamux sessions over TCP, with
// optional TLS. Importing it registers the driver.
package tcp

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/srand/mqrpc/transport"
	"github.com/srand/mqrpc/transport/common"
)

func init() {
	transport.Register("tcp", NewDriver("tcp"))
}

// Driver dials and listens on a stream network ("tcp", "unix").
// WithProtocol overrides the network per call.
type Driver struct {
	network string
	pool    *common.Pool
}

var _ transport.Driver = (*Driver)(nil)

func NewDriver(network string) *Driver {
	return &Driver{
		network: network,
		pool:    common.NewPool(),
	}
}

func (d *Driver) protocol(options *transport.Options) string {
	if options.Protocol != "" {
		return options.Protocol
	}
	return d.network
}

func (d *Driver) Dial(ctx context.Context, addr string, options *transport.Options) (transport.Requester, error) {
	if addr == "" {
		return nil, transport.ErrNoAddress
	}
	network := d.protocol(options)

	dial := func(ctx context.Context) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: options.ConnectTimeout}
		if options.TLSConfig != nil {
			td := &tls.Dialer{NetDialer: dialer, Config: options.TLSConfig}
			return td.DialContext(ctx, network, addr)
		}
		return dialer.DialContext(ctx, network, addr)
	}

	key := network + "://" + addr
	if options.TLSConfig != nil {
		key += "+tls"
	}
	return d.pool.Open(ctx, key, dial, options)
}

func (d *Driver) Listen(ctx context.Context, addr string, options *transport.Options) (transport.Router, error) {
	if addr == "" {
		return nil, transport.ErrNoAddress
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, d.protocol(options), addr)
	if err != nil {
		return nil, err
	}
	if options.TLSConfig != nil {
		l = tls.NewListener(l, options.TLSConfig)
	}

	router := common.NewRouter(options)
	router.ServeListener(l)
	return router, nil
}
