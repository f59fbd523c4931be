package mqrpc

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Shape interface {
	Area(w, h int) int
}

type geometry interface {
	Shape
	Add(a int32, b int64) int64
	Swap(a, b *int)
	Split(v float64, whole *int64, frac *float64)
	Fail(message string) error
	Panic()
	Move(p Point, dx int) Point
	Fire(event string)
	Blob(data []byte) int
	Count() (int, error)
}

var (
	shapeContract = MustDescribe[Shape](
		WithParamNames("Area", "w", "h"),
	)
	geometryContract = MustDescribe[geometry](
		WithEmbedded(shapeContract),
		WithParamNames("Add", "a", "b"),
		WithParamNames("Swap", "a", "b"),
		WithParamNames("Split", "v", "whole", "frac"),
		WithOut("Split", "whole", "frac"),
		WithParamNames("Fail", "message"),
		WithParamNames("Move", "p", "dx"),
		WithParamNames("Fire", "event"),
		WithAttributes("Fire", Async{}),
		WithParamNames("Blob", "data"),
		WithAttributes("Count", TimeToLive(time.Minute)),
	)
)

var (
	errGeometry = errors.New("geometry failed")
	intType     = reflect.TypeOf(0)
)

type geometryImpl struct {
	calls atomic.Int64

	mu    sync.Mutex
	fired []string
	fire  chan string
}

func newGeometry() *geometryImpl {
	return &geometryImpl{fire: make(chan string, 16)}
}

func (g *geometryImpl) Area(w, h int) int {
	g.calls.Add(1)
	return w * h
}

func (g *geometryImpl) Add(a int32, b int64) int64 {
	g.calls.Add(1)
	return int64(a) + b
}

func (g *geometryImpl) Swap(a, b *int) {
	g.calls.Add(1)
	*a, *b = *b, *a
}

func (g *geometryImpl) Split(v float64, whole *int64, frac *float64) {
	g.calls.Add(1)
	*whole = int64(v)
	*frac = v - float64(*whole)
}

func (g *geometryImpl) Fail(message string) error {
	g.calls.Add(1)
	return errors.Join(errGeometry, errors.New(message))
}

func (g *geometryImpl) Panic() {
	g.calls.Add(1)
	panic("boom")
}

func (g *geometryImpl) Move(p Point, dx int) Point {
	g.calls.Add(1)
	return Point{X: p.X + dx, Y: p.Y}
}

func (g *geometryImpl) Fire(event string) {
	g.calls.Add(1)
	g.mu.Lock()
	g.fired = append(g.fired, event)
	g.mu.Unlock()
	g.fire <- event
}

func (g *geometryImpl) Blob(data []byte) int {
	g.calls.Add(1)
	return len(data)
}

func (g *geometryImpl) Count() (int, error) {
	return int(g.calls.Load()), nil
}

func method(t testing.TB, c *Contract, name string) *Method {
	t.Helper()
	m, ok := c.Method(name)
	require.True(t, ok, "method %s", name)
	return m
}
