package mqrpc

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher invokes requests against a target implementing a contract.
// It is safe for concurrent use.
type Dispatcher struct {
	contract *Contract
	target   reflect.Value
	options  *Options
	logger   *zap.Logger
	limiter  *rate.Limiter

	// async invocations still running; draining is set by Wait and
	// guards wg.Add under mu
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// NewDispatcher binds target, which must implement the contract's interface.
func NewDispatcher(contract *Contract, target any, opts ...Option) (*Dispatcher, error) {
	options, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return newDispatcher(contract, target, options)
}

func newDispatcher(contract *Contract, target any, options *Options) (*Dispatcher, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: nil contract", ErrInvalidContract)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrInvalidContract)
	}
	tv := reflect.ValueOf(target)
	if !tv.Type().Implements(contract.Type()) {
		return nil, fmt.Errorf("%w: %T does not implement %s", ErrInvalidContract, target, contract.Name())
	}

	d := &Dispatcher{
		contract: contract,
		target:   tv,
		options:  options,
		logger:   options.Logger.With(zap.String("contract", contract.Name())),
	}
	if options.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(options.RateLimit), options.RateBurst)
	}
	return d, nil
}

// Dispatch runs one request and returns its response. Every request gets
// exactly one response; failures are carried in Response.Exception.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	if err := ctx.Err(); err != nil {
		return faultResponse(req.ID, err)
	}

	if req.Expired(d.options.Now()) {
		d.logger.Warn("request expired",
			zap.String("id", req.ID),
			zap.String("method", req.MethodName),
			zap.Timep("expiresAt", req.ExpiresAt))
		return faultResponse(req.ID, fmt.Errorf("%w: %s expired at %s", ErrExpired, req.MethodName, req.ExpiresAt.Format(time.RFC3339Nano)))
	}

	if d.limiter != nil && !d.limiter.Allow() {
		return faultResponse(req.ID, fmt.Errorf("%w: %s", ErrRateLimited, req.MethodName))
	}

	m, ok := d.options.Matcher.Match(d.contract, req.MethodSignature)
	if !ok {
		d.logger.Warn("no matching method", zap.String("id", req.ID), zap.String("method", req.MethodName))
		return faultResponse(req.ID, fmt.Errorf("%w: %s.%s on %s", ErrMethodNotFound, req.DeclaringType, req.MethodName, d.contract.Name()))
	}

	args, err := d.arguments(m, req.Params)
	if err != nil {
		return faultResponse(req.ID, fmt.Errorf("%s: %w", m.FullName(), err))
	}

	if req.Async {
		if err := (DefaultFilter{}).CheckValid(m, m.Attributes, true); err != nil {
			return faultResponse(req.ID, err)
		}
		if !d.track() {
			return faultResponse(req.ID, ErrClosed)
		}
		go func() {
			defer d.wg.Done()
			if resp := d.invoke(req.ID, m, args); resp.Faulted() {
				d.logger.Error("async call failed", zap.String("method", m.FullName()), zap.Error(resp.Exception))
			}
		}()
		return &Response{RequestID: req.ID}
	}

	return d.invoke(req.ID, m, args)
}

// Wait blocks until background asynchronous invocations finish. Async
// requests dispatched afterwards are refused with ErrClosed.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	d.wg.Wait()
}

// track registers one background invocation unless Wait has begun.
func (d *Dispatcher) track() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return false
	}
	d.wg.Add(1)
	return true
}

// arguments decodes request params into call arguments. Ref and out
// parameters get freshly allocated pointers.
func (d *Dispatcher) arguments(m *Method, params Params) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(m.Params))
	for i, p := range m.Params {
		raw, ok := params.Get(p.Name)
		if !ok {
			return nil, fmt.Errorf("%w: missing param %s", ErrProtocolViolation, p.Name)
		}

		v, err := Coerce(d.options.Serializer, raw, p.ElemType())
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", p.Name, err)
		}

		ptr := reflect.New(p.ElemType())
		if v != nil {
			ptr.Elem().Set(reflect.ValueOf(v))
		}
		if p.Direction == In {
			args[i] = ptr.Elem()
		} else {
			args[i] = ptr
		}
	}
	return args, nil
}

func (d *Dispatcher) invoke(id string, m *Method, args []reflect.Value) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in target", zap.String("method", m.FullName()), zap.Any("panic", r), zap.Stack("stack"))
			resp = faultResponse(id, fmt.Errorf("%w: panic in %s: %v", ErrInvocation, m.FullName(), r))
		}
	}()

	out := d.target.MethodByName(m.Name).Call(args)

	if m.ReturnsError {
		if errValue := out[len(out)-1]; !errValue.IsNil() {
			return faultResponse(id, errValue.Interface().(error))
		}
	}

	resp = &Response{RequestID: id}
	if !m.IsVoid() && !isNil(out[0]) {
		resp.ReturnValue = out[0].Interface()
	}

	resp.ChangedParams = make(Params, 0, len(args))
	for i, p := range m.Params {
		v := args[i]
		if p.Direction != In {
			v = v.Elem()
		}
		resp.ChangedParams = append(resp.ChangedParams, NamedValue{Name: p.Name, Value: v.Interface()})
	}
	return resp
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// HandleFrame decodes a request frame, dispatches it and encodes the reply.
// Undecodable frames are answered with a protocol fault.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte) []byte {
	var resp *Response

	req, err := unmarshal[Request](d.options.Serializer, frame)
	if err != nil {
		d.logger.Warn("undecodable request", zap.Error(err))
		resp = faultResponse("", fmt.Errorf("%w: undecodable request: %w", ErrProtocolViolation, err))
	} else {
		hidden := d.binaryParams(req)
		logEnvelope(d.logger, trafficReceived, req, hidden)
		resp = d.Dispatch(ctx, req)
		logEnvelope(d.logger, trafficSent, resp, hidden)
	}

	data, err := marshal(d.options.Serializer, resp)
	if err != nil {
		d.logger.Error("unencodable response", zap.String("id", resp.RequestID), zap.Error(err))
		data, err = marshal(d.options.Serializer, faultResponse(resp.RequestID, fmt.Errorf("%w: encoding response: %w", ErrInvocation, err)))
		if err != nil {
			panic(err)
		}
	}
	return data
}

// binaryParams names the []byte parameters of the method req targets.
func (d *Dispatcher) binaryParams(req *Request) []string {
	m, ok := d.options.Matcher.Match(d.contract, req.MethodSignature)
	if !ok {
		return nil
	}
	var names []string
	for _, p := range m.Params {
		if p.ElemType() == bytesType {
			names = append(names, p.Name)
		}
	}
	return names
}
