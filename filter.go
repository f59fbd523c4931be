package mqrpc

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Attribute annotates a contract method. Attributes are declared with
// WithAttributes and consulted by method filters.
type Attribute interface {
	AttributeName() string
}

// Async marks a method as fire-and-forget.
type Async struct{}

func (Async) AttributeName() string { return "async" }

// TimeToLive bounds how long a request for the method stays valid.
// Non-positive values fall back to the client's default time to live.
type TimeToLive time.Duration

func (TimeToLive) AttributeName() string { return "ttl" }

// MethodFilter classifies calls and validates their shape.
type MethodFilter interface {
	// IsAsync reports whether a call to m is fire-and-forget.
	IsAsync(m *Method, attrs []Attribute) bool

	// CheckValid rejects calls whose shape is illegal for the classification.
	CheckValid(m *Method, attrs []Attribute, isAsync bool) error
}

// DefaultFilter treats methods carrying Async as fire-and-forget and
// requires them to return nothing and take no ref or out parameters.
// Clients always run it after any configured filters.
type DefaultFilter struct{}

func (DefaultFilter) IsAsync(m *Method, attrs []Attribute) bool {
	for _, attr := range attrs {
		if _, ok := attr.(Async); ok {
			return true
		}
	}
	return false
}

func (DefaultFilter) CheckValid(m *Method, attrs []Attribute, isAsync bool) error {
	if !isAsync {
		return nil
	}
	if !m.IsVoid() {
		return fmt.Errorf("%w: %s returns a value", ErrInvalidAsync, m.FullName())
	}
	if m.HasRefParams() {
		return fmt.Errorf("%w: %s has ref or out parameters", ErrInvalidAsync, m.FullName())
	}
	return nil
}

type rateLimitFilter struct {
	limiter *rate.Limiter
}

// RateLimitFilter rejects calls exceeding r calls per second with the given
// burst, using a token bucket shared by every method of the client.
func RateLimitFilter(r float64, burst int) MethodFilter {
	return &rateLimitFilter{
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

func (f *rateLimitFilter) IsAsync(*Method, []Attribute) bool {
	return false
}

func (f *rateLimitFilter) CheckValid(m *Method, _ []Attribute, _ bool) error {
	if !f.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrRateLimited, m.FullName())
	}
	return nil
}

// filterChain drops nil filters and appends DefaultFilter.
func filterChain(filters []MethodFilter) []MethodFilter {
	chain := make([]MethodFilter, 0, len(filters)+1)
	for _, f := range filters {
		if f != nil {
			chain = append(chain, f)
		}
	}
	return append(chain, DefaultFilter{})
}

// classify runs the chain: a call is async if any filter says so, and every
// filter must accept it.
func classify(chain []MethodFilter, m *Method) (bool, error) {
	isAsync := false
	for _, f := range chain {
		if f.IsAsync(m, m.Attributes) {
			isAsync = true
			break
		}
	}
	for _, f := range chain {
		if err := f.CheckValid(m, m.Attributes, isAsync); err != nil {
			return false, err
		}
	}
	return isAsync, nil
}

// timeToLive returns the last TimeToLive attribute of m, or def when it has
// none or it is not positive.
func timeToLive(m *Method, def time.Duration) time.Duration {
	ttl := time.Duration(0)
	for _, attr := range m.Attributes {
		if t, ok := attr.(TimeToLive); ok {
			ttl = time.Duration(t)
		}
	}
	if ttl > 0 {
		return ttl
	}
	return def
}
