package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultConnectTimeout = 5 * time.Second

	// DefaultMaxFrameSize bounds frames read from stream transports.
	DefaultMaxFrameSize = 64 * 1024 * 1024
)

type Options struct {
	Addrs []string

	// Timeout for the dial operation
	ConnectTimeout time.Duration

	// Underlying protocol to use (e.g. "tcp", "unix").
	// Varies depending on the transport implementation.
	Protocol string

	// TLS configuration for secure connections
	TLSConfig *tls.Config

	// ClientID identifies an MQTT client. Generated when empty.
	ClientID string

	// QoS used for MQTT publications and subscriptions.
	QoS byte

	// Origin sent with websocket handshakes.
	Origin string

	MaxFrameSize uint32

	Logger *zap.Logger

	Events Events
}

type Option func(*Options) error

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) (*Options, error) {
	options := &Options{
		ConnectTimeout: DefaultConnectTimeout,
		QoS:            1,
		Origin:         "http://localhost/",
		MaxFrameSize:   DefaultMaxFrameSize,
		Logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

func WithAddress(addr string) Option {
	return func(opts *Options) error {
		opts.Addrs = append(opts.Addrs, addr)
		return nil
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(opts *Options) error {
		opts.ConnectTimeout = d
		return nil
	}
}

func WithProtocol(protocol string) Option {
	return func(opts *Options) error {
		opts.Protocol = protocol
		return nil
	}
}

func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opts *Options) error {
		opts.TLSConfig = tlsConfig
		return nil
	}
}

func WithCertificateFile(certFile, keyFile string) Option {
	return func(opts *Options) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("failed to load certificate: %w", err)
		}

		if opts.TLSConfig == nil {
			opts.TLSConfig = &tls.Config{}
		}

		opts.TLSConfig.Certificates = []tls.Certificate{cert}
		return nil
	}
}

func WithSelfSignedCert() Option {
	return func(opts *Options) error {
		if opts.TLSConfig == nil {
			opts.TLSConfig = &tls.Config{}
		}

		// Generate a self-signed certificate that expires in 30 days
		cert, err := GenerateCertificate(30 * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}

		opts.TLSConfig.InsecureSkipVerify = true
		opts.TLSConfig.Certificates = []tls.Certificate{cert}

		return nil
	}
}

func WithClientID(id string) Option {
	return func(opts *Options) error {
		opts.ClientID = id
		return nil
	}
}

func WithQoS(qos byte) Option {
	return func(opts *Options) error {
		if qos > 2 {
			return fmt.Errorf("invalid QoS %d", qos)
		}
		opts.QoS = qos
		return nil
	}
}

func WithOrigin(origin string) Option {
	return func(opts *Options) error {
		opts.Origin = origin
		return nil
	}
}

func WithMaxFrameSize(n uint32) Option {
	return func(opts *Options) error {
		if n == 0 {
			return fmt.Errorf("max frame size cannot be zero")
		}
		opts.MaxFrameSize = n
		return nil
	}
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

// WithOnConnect registers a callback run with the remote address whenever
// the transport establishes or accepts a connection.
func WithOnConnect(f func(addr string)) Option {
	return func(opts *Options) error {
		if f == nil {
			return fmt.Errorf("OnConnect function cannot be nil")
		}
		opts.Events.OnConnect(f)
		return nil
	}
}
