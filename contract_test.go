package mqrpc

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	c := geometryContract

	assert.Equal(t, "github.com/srand/mqrpc.geometry", c.Name())
	assert.Equal(t, "github.com/srand/mqrpc", c.Module())
	assert.Equal(t, reflect.TypeOf((*geometry)(nil)).Elem(), c.Type())
	assert.Equal(t, []*Contract{shapeContract}, c.Embedded())
	assert.Len(t, c.OwnMethods(), 9)
	assert.Len(t, c.Methods(), 10)

	_, ok := c.Method("Area")
	assert.True(t, ok)
	_, ok = c.Method("Missing")
	assert.False(t, ok)
}

func TestDescribeMethods(t *testing.T) {
	add := method(t, geometryContract, "Add")
	assert.Equal(t, "github.com/srand/mqrpc.geometry.Add", add.FullName())
	assert.Equal(t, reflect.TypeOf(int64(0)), add.Result)
	assert.False(t, add.ReturnsError)
	assert.False(t, add.HasRefParams())
	require.Len(t, add.Params, 2)
	assert.Equal(t, "a", add.Params[0].Name)
	assert.Equal(t, reflect.TypeOf(int32(0)), add.Params[0].Type)
	assert.Equal(t, In, add.Params[0].Direction)

	swap := method(t, geometryContract, "Swap")
	assert.True(t, swap.IsVoid())
	assert.True(t, swap.HasRefParams())
	assert.Equal(t, Ref, swap.Params[0].Direction)
	assert.Equal(t, reflect.TypeOf(0), swap.Params[0].ElemType())

	split := method(t, geometryContract, "Split")
	whole, ok := split.Param("whole")
	require.True(t, ok)
	assert.Equal(t, Out, whole.Direction)
	assert.Equal(t, reflect.TypeOf(int64(0)), whole.ElemType())

	fail := method(t, geometryContract, "Fail")
	assert.True(t, fail.IsVoid())
	assert.True(t, fail.ReturnsError)

	count := method(t, geometryContract, "Count")
	assert.Equal(t, reflect.TypeOf(0), count.Result)
	assert.True(t, count.ReturnsError)
	assert.Equal(t, []Attribute{TimeToLive(60e9)}, count.Attributes)

	fire := method(t, geometryContract, "Fire")
	assert.Equal(t, []Attribute{Async{}}, fire.Attributes)
	assert.Equal(t, "arg0", method(t, MustDescribe[adder](), "Add").Params[0].Name)
}

func TestMethodString(t *testing.T) {
	split := method(t, geometryContract, "Split")
	assert.Equal(t, "github.com/srand/mqrpc.geometry.Split(v float64, out whole *int64, out frac *float64)", split.String())
}

type badResults interface {
	Two() (int, int)
}

type tooManyResults interface {
	Three() (int, int, error)
}

type variadic interface {
	Sum(values ...int) int
}

type outOnValue interface {
	Get(key string) string
}

type anonymousHolder struct {
	contract interface{ Ping() }
}

func TestDescribeRejects(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Contract, error)
	}{
		{"not an interface", func() (*Contract, error) { return Describe[Point]() }},
		{"second result not error", func() (*Contract, error) { return Describe[badResults]() }},
		{"three results", func() (*Contract, error) { return Describe[tooManyResults]() }},
		{"variadic", func() (*Contract, error) { return Describe[variadic]() }},
		{"out on value param", func() (*Contract, error) { return Describe[outOnValue](WithOut("Get", "arg0")) }},
		{"wrong name count", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "a")) }},
		{"duplicate names", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "a", "a")) }},
		{"empty name", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "", "b")) }},
		{"name with comma", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "a,int32 b", "c")) }},
		{"name with space", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "a b", "c")) }},
		{"name with paren", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "a)", "b")) }},
		{"keyword name", func() (*Contract, error) { return Describe[adder](WithParamNames("Add", "func", "b")) }},
		{"unknown method option", func() (*Contract, error) { return Describe[adder](WithAttributes("Sub", Async{})) }},
		{"not embedded", func() (*Contract, error) { return Describe[adder](WithEmbedded(shapeContract)) }},
		{"nil embedded", func() (*Contract, error) { return Describe[adder](WithEmbedded(nil)) }},
		{"anonymous", func() (*Contract, error) {
			return DescribeType(reflect.TypeOf(anonymousHolder{}).Field(0).Type)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidContract)
		})
	}
}

func TestDescribeAnonymousWithName(t *testing.T) {
	typ := reflect.TypeOf(anonymousHolder{}).Field(0).Type
	c, err := DescribeType(typ, WithName("demo.Pinger", "demo"))
	require.NoError(t, err)
	assert.Equal(t, "demo.Pinger", c.Name())
	assert.Equal(t, "demo", c.Module())
}

func TestMustDescribePanics(t *testing.T) {
	assert.Panics(t, func() { MustDescribe[Point]() })
}
