package mqrpc

import (
	"fmt"
	"go/token"
	"reflect"
	"sort"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Contract describes a Go interface type that can be called remotely.
//
// Go reflection exposes neither parameter names nor interface embedding,
// so both are declared when the contract is described. The methods a
// contract declares itself are its own methods; methods supplied by an
// embedded contract keep that contract as their declaring contract.
type Contract struct {
	typ      reflect.Type
	name     string
	module   string
	embedded []*Contract
	own      []*Method
	methods  map[string]*Method
}

type contractOptions struct {
	name       string
	module     string
	embedded   []*Contract
	paramNames map[string][]string
	out        map[string][]string
	attributes map[string][]Attribute
}

// ContractOption configures Describe.
type ContractOption func(*contractOptions) error

// WithEmbedded declares the contracts embedded in the described interface.
func WithEmbedded(contracts ...*Contract) ContractOption {
	return func(opts *contractOptions) error {
		for _, c := range contracts {
			if c == nil {
				return fmt.Errorf("%w: nil embedded contract", ErrInvalidContract)
			}
			opts.embedded = append(opts.embedded, c)
		}
		return nil
	}
}

// WithParamNames names the parameters of a method, in declaration order.
// Unnamed methods use arg0, arg1, ...
func WithParamNames(method string, names ...string) ContractOption {
	return func(opts *contractOptions) error {
		opts.paramNames[method] = names
		return nil
	}
}

// WithOut marks pointer parameters of a method as out parameters.
func WithOut(method string, params ...string) ContractOption {
	return func(opts *contractOptions) error {
		opts.out[method] = append(opts.out[method], params...)
		return nil
	}
}

// WithAttributes attaches attributes to a method.
func WithAttributes(method string, attrs ...Attribute) ContractOption {
	return func(opts *contractOptions) error {
		opts.attributes[method] = append(opts.attributes[method], attrs...)
		return nil
	}
}

// WithName overrides the contract's full name and module, which otherwise
// come from the interface's package path and name. Both ends of a
// connection must agree on them since they are part of every signature.
func WithName(name, module string) ContractOption {
	return func(opts *contractOptions) error {
		if name == "" {
			return fmt.Errorf("%w: empty contract name", ErrInvalidContract)
		}
		opts.name = name
		opts.module = module
		return nil
	}
}

// Describe builds the contract for interface type T.
func Describe[T any](options ...ContractOption) (*Contract, error) {
	return DescribeType(reflect.TypeOf((*T)(nil)).Elem(), options...)
}

// MustDescribe is like Describe but panics on error.
func MustDescribe[T any](options ...ContractOption) *Contract {
	c, err := Describe[T](options...)
	if err != nil {
		panic(err)
	}
	return c
}

// DescribeType builds the contract for interface type t.
func DescribeType(t reflect.Type, options ...ContractOption) (*Contract, error) {
	if t == nil || t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %v is not an interface type", ErrInvalidContract, t)
	}

	opts := &contractOptions{
		name:       TypeName(t),
		module:     t.PkgPath(),
		paramNames: make(map[string][]string),
		out:        make(map[string][]string),
		attributes: make(map[string][]Attribute),
	}
	for _, opt := range options {
		if err := opt(opts); err != nil {
			return nil, err
		}
	}
	if t.Name() == "" && opts.name == TypeName(t) {
		return nil, fmt.Errorf("%w: anonymous interface %v needs WithName", ErrInvalidContract, t)
	}

	c := &Contract{
		typ:      t,
		name:     opts.name,
		module:   opts.module,
		embedded: opts.embedded,
		methods:  make(map[string]*Method),
	}

	inherited := make(map[string]*Method)
	for _, e := range opts.embedded {
		if !t.Implements(e.typ) {
			return nil, fmt.Errorf("%w: %s does not embed %s", ErrInvalidContract, c.name, e.name)
		}
		for name, m := range e.methods {
			inherited[name] = m
		}
	}

	for i := 0; i < t.NumMethod(); i++ {
		rm := t.Method(i)
		if !rm.IsExported() {
			return nil, fmt.Errorf("%w: %s.%s is unexported", ErrInvalidContract, c.name, rm.Name)
		}
		if m, ok := inherited[rm.Name]; ok {
			c.methods[rm.Name] = m
			continue
		}

		m, err := describeMethod(c, rm, opts)
		if err != nil {
			return nil, err
		}
		c.own = append(c.own, m)
		c.methods[m.Name] = m
	}

	for _, set := range []map[string][]string{opts.paramNames, opts.out} {
		for name := range set {
			if !c.hasOwn(name) {
				return nil, fmt.Errorf("%w: %s declares no method %s", ErrInvalidContract, c.name, name)
			}
		}
	}
	for name := range opts.attributes {
		if !c.hasOwn(name) {
			return nil, fmt.Errorf("%w: %s declares no method %s", ErrInvalidContract, c.name, name)
		}
	}

	return c, nil
}

func describeMethod(c *Contract, rm reflect.Method, opts *contractOptions) (*Method, error) {
	ft := rm.Type
	m := &Method{
		Contract:   c,
		Name:       rm.Name,
		Attributes: opts.attributes[rm.Name],
	}

	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: %s is variadic", ErrInvalidContract, m.FullName())
	}

	names := opts.paramNames[rm.Name]
	if names != nil && len(names) != ft.NumIn() {
		return nil, fmt.Errorf("%w: %s has %d parameters, %d names given", ErrInvalidContract, m.FullName(), ft.NumIn(), len(names))
	}

	out := make(map[string]bool)
	for _, name := range opts.out[rm.Name] {
		out[name] = true
	}

	seen := make(map[string]bool)
	for i := 0; i < ft.NumIn(); i++ {
		p := Param{
			Name: fmt.Sprintf("arg%d", i),
			Type: ft.In(i),
		}
		if names != nil {
			p.Name = names[i]
		}
		if !token.IsIdentifier(p.Name) || seen[p.Name] {
			return nil, fmt.Errorf("%w: %s has an invalid or duplicate parameter name %q", ErrInvalidContract, m.FullName(), p.Name)
		}
		seen[p.Name] = true

		if p.Type.Kind() == reflect.Pointer {
			p.Direction = Ref
			if out[p.Name] {
				p.Direction = Out
			}
			delete(out, p.Name)
		}
		m.Params = append(m.Params, p)
	}
	for name := range out {
		return nil, fmt.Errorf("%w: out parameter %s of %s must be a pointer parameter", ErrInvalidContract, name, m.FullName())
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.ReturnsError = true
		} else {
			m.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result of %s must be error", ErrInvalidContract, m.FullName())
		}
		m.Result = ft.Out(0)
		m.ReturnsError = true
	default:
		return nil, fmt.Errorf("%w: %s returns more than two results", ErrInvalidContract, m.FullName())
	}

	return m, nil
}

func (c *Contract) hasOwn(name string) bool {
	for _, m := range c.own {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Type returns the described interface type.
func (c *Contract) Type() reflect.Type {
	return c.typ
}

// Name returns the contract's fully-qualified name.
func (c *Contract) Name() string {
	return c.name
}

// Module returns the name of the module (Go package path) declaring the contract.
func (c *Contract) Module() string {
	return c.module
}

// Embedded returns the directly embedded contracts.
func (c *Contract) Embedded() []*Contract {
	return c.embedded
}

// OwnMethods returns the methods declared by the contract itself, sorted by name.
func (c *Contract) OwnMethods() []*Method {
	return c.own
}

// Method looks up a method by name, including methods of embedded contracts.
func (c *Contract) Method(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Methods returns every callable method, sorted by name.
func (c *Contract) Methods() []*Method {
	methods := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool {
		return methods[i].Name < methods[j].Name
	})
	return methods
}

func (c *Contract) String() string {
	return c.name
}
