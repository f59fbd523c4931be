// Package testutil provides endpoint factories and mocks shared by tests.
package testutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	_ "github.com/srand/mqrpc/transport/http"
	_ "github.com/srand/mqrpc/transport/inproc"
	_ "github.com/srand/mqrpc/transport/tcp"
	_ "github.com/srand/mqrpc/transport/unix"
)

// Factory hands out fresh endpoint addresses of one transport.
type Factory interface {
	Name() string
	Address(t testing.TB) string
}

type InprocFactory struct{}

func (f *InprocFactory) Name() string { return "inproc" }

func (f *InprocFactory) Address(t testing.TB) string {
	return "inproc://" + uuid.NewString()
}

var _ Factory = (*InprocFactory)(nil)

type TcpFactory struct{}

func (f *TcpFactory) Name() string { return "tcp" }

func (f *TcpFactory) Address(t testing.TB) string {
	return "tcp://" + FreeAddr(t)
}

var _ Factory = (*TcpFactory)(nil)

type UnixFactory struct{}

func (f *UnixFactory) Name() string { return "unix" }

func (f *UnixFactory) Address(t testing.TB) string {
	// t.TempDir paths can exceed the socket path limit.
	dir, err := os.MkdirTemp("", "mqrpc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return "unix://" + filepath.Join(dir, "mqrpc.sock")
}

var _ Factory = (*UnixFactory)(nil)

type WebsocketFactory struct{}

func (f *WebsocketFactory) Name() string { return "ws" }

func (f *WebsocketFactory) Address(t testing.TB) string {
	return "ws://" + FreeAddr(t) + "/mqrpc"
}

var _ Factory = (*WebsocketFactory)(nil)

// Factories returns a factory for every transport that runs without
// external services.
func Factories() []Factory {
	return []Factory{
		&InprocFactory{},
		&TcpFactory{},
		&UnixFactory{},
		&WebsocketFactory{},
	}
}

// FreeAddr returns a loopback host:port that was free when checked.
func FreeAddr(t testing.TB) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}
