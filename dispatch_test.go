package mqrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srand/mqrpc/serialization"
)

// decodedRequest builds a request for name the way a server sees it after
// decoding: values as produced by the JSON serializer.
func decodedRequest(t *testing.T, matcher Matcher, name string, params string) *Request {
	t.Helper()

	m := method(t, geometryContract, name)
	var decoded Params
	require.NoError(t, json.Unmarshal([]byte(params), &decoded))

	expires := time.Now().Add(time.Minute)
	return &Request{
		ID:              "req-" + name,
		Params:          decoded,
		MemberType:      MemberMethod,
		MethodName:      name,
		MethodSignature: matcher.Signature(m),
		DeclaringType:   m.Contract.Name(),
		DeclaringModule: m.Contract.Module(),
		ExpiresAt:       &expires,
	}
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *geometryImpl, Matcher) {
	t.Helper()

	matcher := NewMatcher(nil)
	target := newGeometry()
	d, err := NewDispatcher(geometryContract, target, append([]Option{WithMatcher(matcher)}, opts...)...)
	require.NoError(t, err)
	return d, target, matcher
}

func TestDispatchAdd(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Equal(t, "req-Add", resp.RequestID)
	assert.Equal(t, int64(5), resp.ReturnValue)
	assert.Equal(t, []string{"a", "b"}, resp.ChangedParams.Names())
}

func TestDispatchEmbeddedMethod(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Area", `{"w":4,"h":5}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Equal(t, 20, resp.ReturnValue)
}

func TestDispatchRefAndOutParams(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Swap", `{"a":1,"b":2}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Nil(t, resp.ReturnValue)
	assert.Equal(t, Params{{Name: "a", Value: 2}, {Name: "b", Value: 1}}, resp.ChangedParams)

	resp = d.Dispatch(context.Background(), decodedRequest(t, matcher, "Split", `{"v":2.5,"whole":null,"frac":null}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	whole, _ := resp.ChangedParams.Get("whole")
	frac, _ := resp.ChangedParams.Get("frac")
	assert.Equal(t, int64(2), whole)
	assert.Equal(t, 0.5, frac)
}

func TestDispatchComplexParam(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Move", `{"p":{"x":1,"y":7},"dx":2}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Equal(t, Point{X: 3, Y: 7}, resp.ReturnValue)
}

func TestDispatchBytesParam(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Blob", `{"data":"AQIDBA=="}`))
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Equal(t, 4, resp.ReturnValue)
}

func TestDispatchTargetError(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Fail", `{"message":"bad input"}`))
	require.True(t, resp.Faulted())
	assert.Equal(t, KindInvocation, resp.Exception.Kind)
	assert.Contains(t, resp.Exception.Message, "bad input")
	assert.Nil(t, resp.ReturnValue)
	assert.Nil(t, resp.ChangedParams)
}

func TestDispatchRecoversPanic(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Panic", `{}`))
	require.True(t, resp.Faulted())
	assert.ErrorIs(t, resp.Exception, ErrInvocation)
	assert.Contains(t, resp.Exception.Message, "boom")
}

func TestDispatchExpiredNeverInvokes(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	req := decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`)
	past := time.Now().Add(-time.Second)
	req.ExpiresAt = &past

	resp := d.Dispatch(context.Background(), req)
	require.True(t, resp.Faulted())
	assert.Equal(t, KindExpired, resp.Exception.Kind)
	assert.ErrorIs(t, resp.Exception, ErrExpired)
	assert.Zero(t, target.calls.Load())
}

func TestDispatchExpiryUsesClock(t *testing.T) {
	now := time.Now().Add(time.Hour)
	d, target, matcher := newTestDispatcher(t, WithClock(func() time.Time { return now }))

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`))
	assert.ErrorIs(t, resp.Exception, ErrExpired)
	assert.Zero(t, target.calls.Load())
}

func TestDispatchNotFound(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	req := decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`)
	req.MethodSignature = CanonicalSignature(method(t, MustDescribe[adder](), "Add"))

	resp := d.Dispatch(context.Background(), req)
	require.True(t, resp.Faulted())
	assert.Equal(t, KindNotFound, resp.Exception.Kind)
	assert.Contains(t, resp.Exception.Message, "Add")
	assert.Zero(t, target.calls.Load())
}

func TestDispatchMissingParam(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":2}`))
	require.True(t, resp.Faulted())
	assert.Equal(t, KindProtocol, resp.Exception.Kind)
	assert.Contains(t, resp.Exception.Message, "missing param b")
	assert.Zero(t, target.calls.Load())
}

func TestDispatchCoercionFailure(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":4294967296,"b":3}`))
	require.True(t, resp.Faulted())
	assert.Equal(t, KindCoercion, resp.Exception.Kind)
	assert.Zero(t, target.calls.Load())
}

func TestDispatchCancelledContext(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := d.Dispatch(ctx, decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`))
	require.True(t, resp.Faulted())
	assert.Zero(t, target.calls.Load())
}

func TestDispatchRateLimit(t *testing.T) {
	d, target, matcher := newTestDispatcher(t, WithRateLimit(0.001, 1))

	resp := d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`))
	require.False(t, resp.Faulted())

	resp = d.Dispatch(context.Background(), decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`))
	require.True(t, resp.Faulted())
	assert.Equal(t, KindRateLimited, resp.Exception.Kind)
	assert.Equal(t, int64(1), target.calls.Load())
}

func TestDispatchAsync(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	req := decodedRequest(t, matcher, "Fire", `{"event":"started"}`)
	req.Async = true

	resp := d.Dispatch(context.Background(), req)
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Nil(t, resp.ReturnValue)
	assert.Nil(t, resp.ChangedParams)

	select {
	case event := <-target.fire:
		assert.Equal(t, "started", event)
	case <-time.After(5 * time.Second):
		t.Fatal("async call never ran")
	}
	d.Wait()
}

func TestDispatchAsyncRejectsValueMethods(t *testing.T) {
	d, target, matcher := newTestDispatcher(t)

	req := decodedRequest(t, matcher, "Add", `{"a":2,"b":3}`)
	req.Async = true

	resp := d.Dispatch(context.Background(), req)
	require.True(t, resp.Faulted())
	assert.ErrorIs(t, resp.Exception, ErrInvocation)
	assert.Contains(t, resp.Exception.Message, ErrInvalidAsync.Error())
	assert.Zero(t, target.calls.Load())
}

func TestHandleFrame(t *testing.T) {
	d, _, matcher := newTestDispatcher(t)
	codec := serialization.NewJSONSerializer()

	frame, err := marshal(codec, decodedRequest(t, matcher, "Add", `{"a":20,"b":22}`))
	require.NoError(t, err)

	resp, err := unmarshal[Response](codec, d.HandleFrame(context.Background(), frame))
	require.NoError(t, err)
	require.False(t, resp.Faulted(), "%v", resp.Exception)
	assert.Equal(t, json.Number("42"), resp.ReturnValue)
}

func TestHandleFrameUndecodable(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	codec := serialization.NewJSONSerializer()

	resp, err := unmarshal[Response](codec, d.HandleFrame(context.Background(), []byte("{not json")))
	require.NoError(t, err)
	require.True(t, resp.Faulted())
	assert.Equal(t, KindProtocol, resp.Exception.Kind)
	assert.Empty(t, resp.RequestID)
}

func TestNewDispatcherRejects(t *testing.T) {
	_, err := NewDispatcher(geometryContract, &Point{})
	assert.ErrorIs(t, err, ErrInvalidContract)

	_, err = NewDispatcher(nil, newGeometry())
	assert.ErrorIs(t, err, ErrInvalidContract)

	_, err = NewDispatcher(geometryContract, nil)
	assert.ErrorIs(t, err, ErrInvalidContract)
}
