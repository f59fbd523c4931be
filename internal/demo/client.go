package demo

import (
	"context"

	"github.com/srand/mqrpc"
)

// ServiceClient calls a remote Service. Its methods mirror the contract with
// a context and an error added.
type ServiceClient struct {
	client *mqrpc.Client
}

func NewServiceClient(client *mqrpc.Client) *ServiceClient {
	return &ServiceClient{client: client}
}

// DialService connects a ServiceClient to addr.
func DialService(ctx context.Context, addr string, opts ...mqrpc.Option) (*ServiceClient, error) {
	client, err := mqrpc.Dial(ctx, ServiceContract, addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewServiceClient(client), nil
}

func (c *ServiceClient) Close() error {
	return c.client.Close()
}

func (c *ServiceClient) Add(ctx context.Context, a, b int) (int, error) {
	return mqrpc.Invoke[int](ctx, c.client, "Add", a, b)
}

// Divide returns the quotient and remainder of dividend / divisor.
func (c *ServiceClient) Divide(ctx context.Context, dividend, divisor int) (int, int, error) {
	var remainder int
	quotient, err := mqrpc.Invoke[int](ctx, c.client, "Divide", dividend, divisor, &remainder)
	if err != nil {
		return 0, 0, err
	}
	return quotient, remainder, nil
}

func (c *ServiceClient) Echo(ctx context.Context, message string) (string, error) {
	return mqrpc.Invoke[string](ctx, c.client, "Echo", message)
}

// Notify returns once the server has accepted the event.
func (c *ServiceClient) Notify(ctx context.Context, event string) error {
	_, err := c.client.Call(ctx, "Notify", event)
	return err
}

func (c *ServiceClient) Programmers(ctx context.Context) ([]User, error) {
	return mqrpc.Invoke[[]User](ctx, c.client, "Programmers")
}

func (c *ServiceClient) GoodProgrammers(ctx context.Context, users []User) ([]User, error) {
	return mqrpc.Invoke[[]User](ctx, c.client, "GoodProgrammers", users)
}

func (c *ServiceClient) SetFileToPath(ctx context.Context, path string, content []byte) (bool, error) {
	return mqrpc.Invoke[bool](ctx, c.client, "SetFileToPath", path, content)
}

func (c *ServiceClient) Version(ctx context.Context) (string, error) {
	return mqrpc.Invoke[string](ctx, c.client, "Version")
}
