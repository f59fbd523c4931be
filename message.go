package mqrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/srand/mqrpc/serialization"
)

// NamedValue is one entry of Params.
type NamedValue struct {
	Name  string
	Value any
}

// Params is an ordered name to value mapping. It encodes as a JSON object
// whose keys keep insertion order.
type Params []NamedValue

// Get returns the value stored under name.
func (p Params) Get(name string) (any, bool) {
	for _, nv := range p {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return nil, false
}

// Set replaces the value stored under name or appends a new entry.
func (p *Params) Set(name string, value any) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, NamedValue{Name: name, Value: value})
}

// Names returns the parameter names in order.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i, nv := range p {
		names[i] = nv.Name
	}
	return names
}

func (p Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nv.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(nv.Value)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", nv.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: params must be an object", ErrProtocolViolation)
	}

	params := Params{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: params key must be a string", ErrProtocolViolation)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		params = append(params, NamedValue{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*p = params
	return nil
}

// Request is the call envelope sent from client to server.
type Request struct {
	ID              string     `json:"id"`
	Params          Params     `json:"params"`
	MemberType      MemberType `json:"memberType"`
	MethodName      string     `json:"methodName"`
	MethodSignature string     `json:"methodSignature"`
	DeclaringType   string     `json:"declaringType"`
	DeclaringModule string     `json:"declaringModule"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	ResponseAddress string     `json:"responseAddress,omitempty"`

	// Async marks a fire-and-forget call: the server acknowledges before
	// invoking the target.
	Async bool `json:"async,omitempty"`
}

// Expired reports whether the request has an expiry before now.
func (r *Request) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Response is the reply envelope for a Request.
type Response struct {
	RequestID     string       `json:"requestId"`
	ReturnValue   any          `json:"returnValue,omitempty"`
	ChangedParams Params       `json:"changedParams,omitempty"`
	Exception     *RemoteError `json:"exception,omitempty"`
}

// Faulted reports whether the response carries an exception.
func (r *Response) Faulted() bool {
	return r.Exception != nil
}

func (r *Response) UnmarshalJSON(data []byte) error {
	type response Response
	var raw struct {
		response
		ReturnValue json.RawMessage `json:"returnValue,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Response(raw.response)
	r.ReturnValue = nil
	if len(raw.ReturnValue) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.ReturnValue))
	dec.UseNumber()
	return dec.Decode(&r.ReturnValue)
}

func faultResponse(requestID string, err error) *Response {
	return &Response{
		RequestID: requestID,
		Exception: toRemoteError(err),
	}
}

func marshal[T any](serializer serialization.Serializer, data *T) ([]byte, error) {
	bytes, err := serializer.Marshal(data)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

func unmarshal[T any](serializer serialization.Serializer, data []byte) (*T, error) {
	var result T
	err := serializer.Unmarshal(data, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
