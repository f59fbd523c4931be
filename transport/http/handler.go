package http

import (
	"net/http"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/srand/mqrpc/transport/common"
)

// NewHandler returns an http.Handler upgrading requests to websockets and
// serving a yamux session on each through router. It lets a router share an
// existing HTTP server.
func NewHandler(router *common.Router, logger *zap.Logger) http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame

		session, err := yamux.Server(ws, nil)
		if err != nil {
			logger.Warn("yamux session failed", zap.Error(err))
			ws.Close()
			return
		}
		router.ServeSession(session)
	})
}
