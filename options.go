package mqrpc

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/srand/mqrpc/serialization"
	"github.com/srand/mqrpc/transport"
)

const (
	// DefaultTTL is the time to live of requests for methods without a
	// positive TimeToLive attribute.
	DefaultTTL = 5 * time.Second

	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Options configures clients and servers. Fields a component does not use
// are ignored.
type Options struct {
	Logger     *zap.Logger
	Serializer serialization.Serializer
	Matcher    Matcher

	// Timeout bounds how long a client waits for a reply. Zero waits until
	// the call's context is done.
	Timeout    time.Duration
	DefaultTTL time.Duration
	Filters    []MethodFilter

	// ResponseAddress is sent with every request as a reply address hint.
	ResponseAddress string

	Workers   int
	QueueSize int

	// RateLimit caps the requests a server dispatches per second. Zero disables it.
	RateLimit float64
	RateBurst int

	// Transport options are passed to the transport driver by Dial and Listen.
	Transport []transport.Option

	Now func() time.Time
}

// Option configures Options.
type Option func(*Options) error

func newOptions(opts []Option) (*Options, error) {
	options := &Options{
		Logger:     zap.NewNop(),
		Serializer: serialization.NewJSONSerializer(),
		DefaultTTL: DefaultTTL,
		Workers:    DefaultWorkers,
		QueueSize:  DefaultQueueSize,
		Now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if options.Matcher == nil {
		options.Matcher = NewMatcher(nil)
	}
	return options, nil
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		opts.Logger = logger
		return nil
	}
}

func WithSerializer(serializer serialization.Serializer) Option {
	return func(opts *Options) error {
		if serializer == nil {
			return fmt.Errorf("serializer cannot be nil")
		}
		opts.Serializer = serializer
		return nil
	}
}

// WithMatcher replaces the signature matcher. Clients and servers sharing a
// SignatureCache should be given matchers built on it.
func WithMatcher(matcher Matcher) Option {
	return func(opts *Options) error {
		if matcher == nil {
			return fmt.Errorf("matcher cannot be nil")
		}
		opts.Matcher = matcher
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(opts *Options) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
		opts.Timeout = d
		return nil
	}
}

func WithDefaultTTL(d time.Duration) Option {
	return func(opts *Options) error {
		if d <= 0 {
			return fmt.Errorf("default time to live must be positive")
		}
		opts.DefaultTTL = d
		return nil
	}
}

func WithFilters(filters ...MethodFilter) Option {
	return func(opts *Options) error {
		opts.Filters = append(opts.Filters, filters...)
		return nil
	}
}

func WithResponseAddress(addr string) Option {
	return func(opts *Options) error {
		opts.ResponseAddress = addr
		return nil
	}
}

func WithWorkers(n int) Option {
	return func(opts *Options) error {
		if n <= 0 {
			return fmt.Errorf("worker count must be positive")
		}
		opts.Workers = n
		return nil
	}
}

func WithQueueSize(n int) Option {
	return func(opts *Options) error {
		if n < 0 {
			return fmt.Errorf("queue size cannot be negative")
		}
		opts.QueueSize = n
		return nil
	}
}

func WithRateLimit(r float64, burst int) Option {
	return func(opts *Options) error {
		if r <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit and burst must be positive")
		}
		opts.RateLimit = r
		opts.RateBurst = burst
		return nil
	}
}

func WithTransportOptions(options ...transport.Option) Option {
	return func(opts *Options) error {
		opts.Transport = append(opts.Transport, options...)
		return nil
	}
}

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		opts.Now = now
		return nil
	}
}
