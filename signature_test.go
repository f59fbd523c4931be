package mqrpc

import (
	"encoding/base64"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adder interface {
	Add(a, b int) int
}

type otherAdder interface {
	Add(a, b int) int
}

func TestCanonicalSignatureFormat(t *testing.T) {
	m := method(t, geometryContract, "Add")

	raw, err := base64.StdEncoding.DecodeString(CanonicalSignature(m))
	require.NoError(t, err)
	assert.Equal(t, "github.com/srand/mqrpc.geometry.Add(int32 a,int64 b)", string(raw))
}

func TestCanonicalSignatureDeterministic(t *testing.T) {
	c1 := MustDescribe[adder](WithParamNames("Add", "a", "b"))
	c2 := MustDescribe[adder](WithParamNames("Add", "a", "b"))

	m1 := method(t, c1, "Add")
	m2 := method(t, c2, "Add")
	require.NotSame(t, m1, m2)
	assert.Equal(t, CanonicalSignature(m1), CanonicalSignature(m2))
}

func TestCanonicalSignatureDistinct(t *testing.T) {
	base := CanonicalSignature(method(t, MustDescribe[adder](WithParamNames("Add", "a", "b")), "Add"))

	variants := map[string]*Contract{
		"param name":     MustDescribe[adder](WithParamNames("Add", "x", "b")),
		"param order":    MustDescribe[adder](WithParamNames("Add", "b", "a")),
		"declaring type": MustDescribe[otherAdder](WithParamNames("Add", "a", "b")),
		"renamed type":   MustDescribe[adder](WithParamNames("Add", "a", "b"), WithName("calc.Adder", "calc")),
	}
	for name, c := range variants {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base, CanonicalSignature(method(t, c, "Add")))
		})
	}

	t.Run("param type", func(t *testing.T) {
		add := method(t, geometryContract, "Add")
		area := method(t, geometryContract, "Area")
		assert.NotEqual(t, CanonicalSignature(add), CanonicalSignature(area))
	})
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeOf(0), "int"},
		{reflect.TypeOf(""), "string"},
		{reflect.TypeOf(Point{}), "github.com/srand/mqrpc.Point"},
		{reflect.TypeOf(&Point{}), "*github.com/srand/mqrpc.Point"},
		{reflect.TypeOf([]Point{}), "[]github.com/srand/mqrpc.Point"},
		{reflect.TypeOf([2]byte{}), "[2]uint8"},
		{reflect.TypeOf(map[string]*Point{}), "map[string]*github.com/srand/mqrpc.Point"},
		{nil, "nil"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeName(tt.typ))
	}
}

func TestMatcherOwnAndEmbedded(t *testing.T) {
	matcher := NewMatcher(nil)

	add := method(t, geometryContract, "Add")
	m, ok := matcher.Match(geometryContract, matcher.Signature(add))
	require.True(t, ok)
	assert.Same(t, add, m)

	area := method(t, geometryContract, "Area")
	assert.Same(t, shapeContract, area.Contract)
	m, ok = matcher.Match(geometryContract, matcher.Signature(area))
	require.True(t, ok)
	assert.Same(t, area, m)
}

func TestMatcherNotFound(t *testing.T) {
	matcher := NewMatcher(nil)

	_, ok := matcher.Match(geometryContract, "bm9wZQ==")
	assert.False(t, ok)

	// Embedded contracts do not see their embedders' methods.
	add := method(t, geometryContract, "Add")
	_, ok = matcher.Match(shapeContract, matcher.Signature(add))
	assert.False(t, ok)

	_, ok = matcher.Match(nil, matcher.Signature(add))
	assert.False(t, ok)
}

func TestSignatureCacheConcurrent(t *testing.T) {
	cache := NewSignatureCache()
	methods := geometryContract.Methods()

	want := make(map[*Method]string)
	for _, m := range methods {
		want[m] = CanonicalSignature(m)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, m := range methods {
					if got := cache.Lookup(m); got != want[m] {
						errs <- m.Name
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	assert.Empty(t, errs)
	assert.Equal(t, len(methods), cache.Len())
}

func TestMatcherSharedCache(t *testing.T) {
	cache := NewSignatureCache()
	client := NewMatcher(cache)
	server := NewMatcher(cache)

	add := method(t, geometryContract, "Add")
	_, ok := server.Match(geometryContract, client.Signature(add))
	assert.True(t, ok)
	assert.Positive(t, cache.Len())
}
