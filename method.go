package mqrpc

import (
	"reflect"
	"strings"
)

// MemberType identifies the kind of contract member a request targets.
type MemberType string

const (
	MemberMethod   MemberType = "method"
	MemberProperty MemberType = "property"
)

// Direction tells how a parameter's value travels between caller and callee.
type Direction int

const (
	// In parameters are passed by value and never written back.
	In Direction = iota
	// Ref parameters are pointers whose post-call value is written back when the callee reports it.
	Ref
	// Out parameters are pointers whose post-call value must always be reported.
	Out
)

func (d Direction) String() string {
	switch d {
	case Ref:
		return "ref"
	case Out:
		return "out"
	default:
		return "in"
	}
}

// Param describes one declared method parameter.
type Param struct {
	Name      string
	Type      reflect.Type
	Direction Direction
}

// ElemType returns the type carried on the wire: the pointer element for
// ref and out parameters, the declared type otherwise.
func (p Param) ElemType() reflect.Type {
	if p.Direction != In {
		return p.Type.Elem()
	}
	return p.Type
}

// Method describes a contract method.
type Method struct {
	// Contract is the contract that declares the method.
	Contract *Contract
	Name     string
	Params   []Param

	// Result is the non-error result type, nil for void methods.
	Result reflect.Type

	// ReturnsError reports whether the Go method has a trailing error result.
	ReturnsError bool

	Attributes []Attribute
}

// IsVoid reports whether the method produces no value.
func (m *Method) IsVoid() bool {
	return m.Result == nil
}

// HasRefParams reports whether any parameter is ref or out.
func (m *Method) HasRefParams() bool {
	for _, p := range m.Params {
		if p.Direction != In {
			return true
		}
	}
	return false
}

// Param looks up a parameter by name.
func (m *Method) Param(name string) (Param, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// FullName returns <contract>.<method>.
func (m *Method) FullName() string {
	if m.Contract == nil {
		return m.Name
	}
	return m.Contract.Name() + "." + m.Name
}

func (m *Method) String() string {
	var b strings.Builder
	b.WriteString(m.FullName())
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Direction != In {
			b.WriteString(p.Direction.String())
			b.WriteByte(' ')
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if m.Result != nil {
		b.WriteByte(' ')
		b.WriteString(m.Result.String())
	}
	return b.String()
}
