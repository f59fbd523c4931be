package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Driver creates connections for one address scheme. The address passed to
// a driver has its scheme removed.
type Driver interface {
	Dial(ctx context.Context, addr string, opts *Options) (Requester, error)
	Listen(ctx context.Context, addr string, opts *Options) (Router, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under scheme. It panics if called twice
// for the same scheme or with a nil driver.
func Register(scheme string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("transport: Register driver is nil")
	}
	if _, dup := drivers[scheme]; dup {
		panic("transport: Register called twice for scheme " + scheme)
	}
	drivers[scheme] = driver
}

// Drivers returns the registered schemes, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	schemes := make([]string, 0, len(drivers))
	for scheme := range drivers {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// SplitAddress splits scheme://rest into its parts.
func SplitAddress(addr string) (scheme, rest string, err error) {
	if addr == "" {
		return "", "", ErrNoAddress
	}
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("%w: %q has no scheme", ErrUnknownScheme, addr)
	}
	return scheme, rest, nil
}

func lookup(addr string) (Driver, string, error) {
	scheme, rest, err := SplitAddress(addr)
	if err != nil {
		return nil, "", err
	}
	driversMu.RLock()
	driver, ok := drivers[scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s (forgotten import?)", ErrUnknownScheme, scheme)
	}
	return driver, rest, nil
}

// Dial connects a Requester to addr.
func Dial(ctx context.Context, addr string, opts ...Option) (Requester, error) {
	driver, rest, err := lookup(addr)
	if err != nil {
		return nil, err
	}
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return driver.Dial(ctx, rest, options)
}

// ListenRouter binds a Router to addr.
func ListenRouter(ctx context.Context, addr string, opts ...Option) (Router, error) {
	driver, rest, err := lookup(addr)
	if err != nil {
		return nil, err
	}
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return driver.Listen(ctx, rest, options)
}

// ListenReply binds a Replier to addr. Requests from all peers are queued
// fairly and each reply goes to the peer of the last received request.
func ListenReply(ctx context.Context, addr string, opts ...Option) (Replier, error) {
	router, err := ListenRouter(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewReplier(router), nil
}
