package mysql

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

const (
	defaultMaxAllowedPacket = 64 << 20
	defaultConnectTimeout   = 10 * time.Second
)

// Options configures a single session. Use NewOptions and the With*
// functions below (functional-options pattern) rather than
// constructing the struct directly, so future fields get sane
// defaults.
type Options struct {
	User     string
	Passwd   string
	Net      string
	Addr     string
	DBName   string

	Loc *time.Location
	TLS *tls.Config

	// MaxAllowedPacket is advertised to the server as max_packet_size
	// in the handshake response / SSL request, and enforced locally:
	// writePacket rejects any outgoing payload larger than this before
	// framing it, since this client never fragments a logical payload
	// across more than one packet (spec.md §4.1, §4.2).
	MaxAllowedPacket int
	Collation        string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Logger Logger

	// ConnectAttrs is sent as the CLIENT_CONNECT_ATTRS handshake
	// response block (spec.md §4.2, SPEC_FULL.md connection
	// attributes).
	ConnectAttrs map[string]string

	// AllowNativePasswords, AllowCachingSHA2Password, and
	// AllowCleartextPasswords gate which auth plugin this session will
	// scramble for, whether offered by the initial handshake or
	// requested later by an AuthSwitchRequest (spec.md §4.3). A plugin
	// not allowed here fails the handshake with ErrAuthPluginNotAllowed
	// instead of answering it.
	AllowNativePasswords     bool
	AllowCachingSHA2Password bool
	AllowCleartextPasswords  bool

	// AllowFallbackToPlaintext permits downgrading to an unencrypted
	// connection when TLS was requested (TLS != nil) but the server's
	// initial handshake does not advertise CLIENT_SSL, instead of
	// failing with ErrTlsUnsupported.
	AllowFallbackToPlaintext bool

	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option mutates an Options value. Errors returned from an Option
// abort Apply and surface to the caller of NewOptions/Dial.
type Option func(*Options) error

// NewOptions returns an Options populated with the library defaults.
func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		Net:                      "tcp",
		Addr:                     "127.0.0.1:3306",
		Loc:                      time.UTC,
		Collation:                "utf8mb4_general_ci",
		MaxAllowedPacket:         defaultMaxAllowedPacket,
		ConnectTimeout:           defaultConnectTimeout,
		Logger:                   defaultLogger,
		AllowNativePasswords:     true,
		AllowCachingSHA2Password: true,
	}
	if err := o.Apply(opts...); err != nil {
		return nil, err
	}
	return o, nil
}

// Apply applies opts in order, stopping at the first error.
func (o *Options) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

func WithCredentials(user, passwd string) Option {
	return func(o *Options) error {
		o.User = user
		o.Passwd = passwd
		return nil
	}
}

func WithAddr(network, addr string) Option {
	return func(o *Options) error {
		o.Net = network
		o.Addr = addr
		return nil
	}
}

func WithDatabase(name string) Option {
	return func(o *Options) error {
		o.DBName = name
		return nil
	}
}

func WithTLS(cfg *tls.Config) Option {
	return func(o *Options) error {
		o.TLS = cfg
		return nil
	}
}

func WithTimeouts(connect, read, write time.Duration) Option {
	return func(o *Options) error {
		o.ConnectTimeout = connect
		o.ReadTimeout = read
		o.WriteTimeout = write
		return nil
	}
}

func WithLogger(l Logger) Option {
	return func(o *Options) error {
		o.Logger = l
		return nil
	}
}

func WithConnectAttrs(attrs map[string]string) Option {
	return func(o *Options) error {
		o.ConnectAttrs = attrs
		return nil
	}
}

func WithLocation(loc *time.Location) Option {
	return func(o *Options) error {
		o.Loc = loc
		return nil
	}
}

// WithDialFunc overrides how the session dials the server, used by
// tests to splice in a net.Pipe-backed connection.
func WithDialFunc(f func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(o *Options) error {
		o.DialFunc = f
		return nil
	}
}

func (o *Options) dial(ctx context.Context) (net.Conn, error) {
	if o.DialFunc != nil {
		return o.DialFunc(ctx, o.Net, o.Addr)
	}
	d := net.Dialer{Timeout: o.ConnectTimeout}
	return d.DialContext(ctx, o.Net, o.Addr)
}
