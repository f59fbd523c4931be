package mqrpc

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srand/mqrpc/transport"
)

// Client is the local stand-in for a remote object implementing a contract.
// Stubs implementing the contract interface delegate to Call or Invoke.
//
// A Client has one outstanding call at a time; concurrent calls are
// serialized. Callers needing parallelism use one Client each.
type Client struct {
	contract *Contract
	options  *Options
	logger   *zap.Logger
	filters  []MethodFilter

	// callMu serializes calls. connMu guards conn and closed and is never
	// held while waiting on the transport, so Close can interrupt a call.
	callMu sync.Mutex
	connMu sync.Mutex
	conn   connection
	closed bool
}

// NewClient creates a client for contract sending over connections opened
// by dial. The first connection is opened by the first call.
func NewClient(contract *Contract, dial DialFunc, opts ...Option) (*Client, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: nil contract", ErrInvalidContract)
	}
	if dial == nil {
		return nil, fmt.Errorf("dial function cannot be nil")
	}

	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return newClient(contract, dial, options), nil
}

func newClient(contract *Contract, dial DialFunc, options *Options) *Client {
	return &Client{
		contract: contract,
		options:  options,
		logger:   options.Logger.With(zap.String("contract", contract.Name())),
		filters:  filterChain(options.Filters),
		conn:     connection{dial: dial},
	}
}

// Dial creates a client for contract connected to addr (scheme://rest).
// The transport driver for the scheme must be imported.
func Dial(ctx context.Context, contract *Contract, addr string, opts ...Option) (*Client, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: nil contract", ErrInvalidContract)
	}
	if addr == "" {
		return nil, ErrNoAddress
	}

	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	client := newClient(contract, func(ctx context.Context) (transport.Requester, error) {
		return transport.Dial(ctx, addr, options.Transport...)
	}, options)

	client.connMu.Lock()
	defer client.connMu.Unlock()
	if _, err := client.conn.get(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Contract returns the contract the client calls.
func (c *Client) Contract() *Contract {
	return c.contract
}

// Close releases the client's connection. A call in flight fails with
// ErrClosed.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.close()
}

// Call invokes the named contract method with positional arguments and
// returns its result, nil for void methods. Ref and out parameters take
// pointers, which receive the values reported by the server.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	m, ok := c.contract.Method(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, c.contract.Name(), method)
	}
	return c.CallMethod(ctx, m, args...)
}

// CallMethod is like Call with a resolved method descriptor.
func (c *Client) CallMethod(ctx context.Context, m *Method, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := c.buildRequest(m, args)
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Faulted() {
		c.logger.Debug("call faulted", zap.String("method", m.Name), zap.Error(resp.Exception))
		return nil, resp.Exception
	}
	if req.Async {
		return nil, nil
	}
	return c.mapResponse(m, args, resp)
}

// Invoke calls method on c and asserts its result to R.
func Invoke[R any](ctx context.Context, c *Client, method string, args ...any) (R, error) {
	var zero R

	v, err := c.Call(ctx, method, args...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returns %T, not %T", ErrArgumentType, method, v, zero)
	}
	return r, nil
}

func (c *Client) buildRequest(m *Method, args []any) (*Request, error) {
	if len(args) != len(m.Params) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgumentCount, m.FullName(), len(m.Params), len(args))
	}

	isAsync, err := classify(c.filters, m)
	if err != nil {
		return nil, err
	}

	params := make(Params, 0, len(args))
	for i, p := range m.Params {
		value, err := argumentValue(p, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.FullName(), err)
		}
		params = append(params, NamedValue{Name: p.Name, Value: value})
	}

	expires := c.options.Now().Add(timeToLive(m, c.options.DefaultTTL)).UTC()

	return &Request{
		ID:              uuid.NewString(),
		Params:          params,
		MemberType:      MemberMethod,
		MethodName:      m.Name,
		MethodSignature: c.options.Matcher.Signature(m),
		DeclaringType:   m.Contract.Name(),
		DeclaringModule: m.Contract.Module(),
		ExpiresAt:       &expires,
		ResponseAddress: c.options.ResponseAddress,
		Async:           isAsync,
	}, nil
}

// argumentValue returns the value sent for argument arg of parameter p.
// Pointer arguments of ref and out parameters are dereferenced.
func argumentValue(p Param, arg any) (any, error) {
	if arg == nil {
		return nil, nil
	}

	if p.Direction != In {
		rv := reflect.ValueOf(arg)
		if rv.Type() != p.Type {
			return nil, fmt.Errorf("%w: %s parameter %s needs %v, got %T", ErrArgumentType, p.Direction, p.Name, p.Type, arg)
		}
		if rv.IsNil() {
			return nil, nil
		}
		return rv.Elem().Interface(), nil
	}

	if IsPrimitive(p.Type) {
		v, err := CoercePrimitive(arg, p.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %w", ErrArgumentType, p.Name, err)
		}
		return v, nil
	}
	if !reflect.TypeOf(arg).AssignableTo(p.Type) {
		return nil, fmt.Errorf("%w: parameter %s needs %v, got %T", ErrArgumentType, p.Name, p.Type, arg)
	}
	return arg, nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	hidden := binaryParamNames(req.Params)

	data, err := marshal(c.options.Serializer, req)
	if err != nil {
		return nil, err
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	logEnvelope(c.logger, trafficSent, req, hidden)
	if err := conn.Send(ctx, data); err != nil {
		c.markBroken()
		return nil, fmt.Errorf("sending %s: %w", req.MethodName, err)
	}

	waitCtx := ctx
	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	reply, err := conn.Recv(waitCtx)
	if err != nil {
		if c.markBroken() {
			return nil, fmt.Errorf("receiving %s: %w", req.MethodName, ErrClosed)
		}
		if ctxErr := waitCtx.Err(); ctxErr != nil {
			c.logger.Error("call timed out", zap.String("method", req.MethodName), zap.String("id", req.ID))
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, req.MethodName, ctxErr)
		}
		return nil, fmt.Errorf("receiving %s: %w", req.MethodName, err)
	}

	resp, err := unmarshal[Response](c.options.Serializer, reply)
	if err != nil {
		c.markBroken()
		return nil, fmt.Errorf("%w: undecodable response: %w", ErrProtocolViolation, err)
	}
	logEnvelope(c.logger, trafficReceived, resp, hidden)

	if resp.RequestID != req.ID {
		c.markBroken()
		return nil, fmt.Errorf("%w: response %q answers request %q", ErrProtocolViolation, resp.RequestID, req.ID)
	}
	return resp, nil
}

// acquire returns the live requester, dialing one if needed.
func (c *Client) acquire(ctx context.Context) (transport.Requester, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.conn.get(ctx)
}

// markBroken flags the requester for replacement and reports whether the
// client was closed meanwhile.
func (c *Client) markBroken() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.conn.markBroken()
	return c.closed
}

func (c *Client) mapResponse(m *Method, args []any, resp *Response) (any, error) {
	var result any
	if !m.IsVoid() && resp.ReturnValue != nil {
		v, err := Coerce(c.options.Serializer, resp.ReturnValue, m.Result)
		if err != nil {
			return nil, fmt.Errorf("%s result: %w", m.FullName(), err)
		}
		result = v
	}

	for _, p := range m.Params {
		if p.Direction != Out {
			continue
		}
		if _, ok := resp.ChangedParams.Get(p.Name); !ok {
			return nil, fmt.Errorf("%w %s", ErrMissingOutParam, p.Name)
		}
	}

	for i, p := range m.Params {
		if p.Direction == In {
			continue
		}
		changed, ok := resp.ChangedParams.Get(p.Name)
		if !ok {
			continue
		}
		v, err := Coerce(c.options.Serializer, changed, p.ElemType())
		if err != nil {
			return nil, fmt.Errorf("%s parameter %s: %w", m.FullName(), p.Name, err)
		}
		setPointer(args[i], v)
	}

	return result, nil
}

// setPointer stores v through ptr, a possibly nil pointer argument.
func setPointer(ptr any, v any) {
	if ptr == nil {
		return
	}
	rv := reflect.ValueOf(ptr)
	if rv.IsNil() {
		return
	}
	elem := rv.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return
	}
	elem.Set(reflect.ValueOf(v))
}
