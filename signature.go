package mqrpc

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Matcher computes canonical method signatures and resolves incoming
// signatures to contract methods.
type Matcher interface {
	// Signature returns the canonical signature of a method.
	Signature(m *Method) string

	// Match finds the method of c, or of a contract c embeds, whose
	// signature equals sig.
	Match(c *Contract, sig string) (*Method, bool)
}

// SignatureCache memoizes canonical signatures per method descriptor.
// It is safe for concurrent use and never invalidated.
type SignatureCache struct {
	signatures sync.Map // *Method -> string
}

// NewSignatureCache creates an empty cache.
func NewSignatureCache() *SignatureCache {
	return &SignatureCache{}
}

// Lookup returns the signature of m, computing and storing it on first use.
// Concurrent first lookups of the same method compute the same value, so the
// last store wins without changing the cached result.
func (c *SignatureCache) Lookup(m *Method) string {
	if sig, ok := c.signatures.Load(m); ok {
		return sig.(string)
	}
	sig := CanonicalSignature(m)
	c.signatures.Store(m, sig)
	return sig
}

// Len returns the number of cached signatures.
func (c *SignatureCache) Len() int {
	n := 0
	c.signatures.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

type matcher struct {
	cache *SignatureCache
}

// NewMatcher returns the default Matcher backed by cache. A nil cache gets a
// private one.
func NewMatcher(cache *SignatureCache) Matcher {
	if cache == nil {
		cache = NewSignatureCache()
	}
	return &matcher{cache: cache}
}

func (m *matcher) Signature(method *Method) string {
	return m.cache.Lookup(method)
}

func (m *matcher) Match(c *Contract, sig string) (*Method, bool) {
	if c == nil {
		return nil, false
	}
	for _, method := range c.OwnMethods() {
		if m.Signature(method) == sig {
			return method, true
		}
	}
	for _, e := range c.Embedded() {
		if method, ok := m.Match(e, sig); ok {
			return method, true
		}
	}
	return nil, false
}

// CanonicalSignature renders
//
//	<contract>.<method>(<type> <name>,<type> <name>)
//
// and encodes it with standard base64.
func CanonicalSignature(m *Method) string {
	var b strings.Builder
	b.WriteString(m.FullName())
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(TypeName(p.Type))
		b.WriteByte(' ')
		b.WriteString(p.Name)
	}
	b.WriteByte(')')
	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}

// TypeName returns a fully-qualified, package-path based name for t.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + TypeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), TypeName(t.Elem()))
	case reflect.Map:
		return "map[" + TypeName(t.Key()) + "]" + TypeName(t.Elem())
	default:
		return t.String()
	}
}
