// Package unix registers the unix:// transport, the tcp driver over unix
// domain sockets.
package unix

import (
	"github.com/srand/mqrpc/transport"
	"github.com/srand/mqrpc/transport/tcp"
)

func init() {
	transport.Register("unix", tcp.NewDriver("unix"))
}
