// Package config resolves the daemon configuration from command line
// arguments and environment variables. Each setting is resolved flag first,
// then environment variable, then default.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
)

// DefaultFederation is the invite code of the federation joined when none
// is configured (ecash.club).
const DefaultFederation = "fed11qgqzggnhwden5te0v9cxjtn9vd3jue3wvfkxjmnyva6kzunyd9skutnwv46z7qqpyzhv5mxgpl79xz7j649sj6qldmde5s2uxchy4uh7840qgymsqmazzp6sn43"

// options is the go-flags surface. The five core settings carry env
// fallbacks; the supplemental knobs are flag-only.
type options struct {
	DataDir     string `long:"datadir" env:"BLITZID_DATADIR" description:"Wallet data directory (default ~/.local/share/blitzid)"`
	Federation  string `long:"federation" env:"BLITZID_FEDERATION" description:"Federation invite code (default ecash.club)"`
	BearerToken string `long:"bearer-token" env:"BLITZID_BEARER_TOKEN" description:"Bearer token for authentication (auto-generated if not provided)"`
	Port        uint16 `long:"port" env:"BLITZID_PORT" default:"3000" description:"Port to listen on"`
	Host        string `long:"host" env:"BLITZID_HOST" default:"127.0.0.1" description:"Host to listen on"`

	CORSOrigin     string        `long:"cors-origin" default:"*" description:"Allowed CORS origin, * for any"`
	RateLimit      float64       `long:"rate-limit" default:"50" description:"Requests per second per client IP, 0 disables"`
	MetricsAddr    string        `long:"metrics-addr" description:"Serve Prometheus metrics on this address (disabled if empty)"`
	BackupInterval time.Duration `long:"backup-interval" default:"1h" description:"Interval between wallet snapshot backups"`
	InvoiceTTL     time.Duration `long:"invoice-ttl" default:"1h" description:"How long issued invoices stay payable"`
	AutoSettle     time.Duration `long:"auto-settle" description:"Settle every issued invoice after this delay (dev only, 0 disables)"`
	Stats          bool          `long:"stats" description:"Print operation log statistics and exit"`
}

// Config is the effective configuration, immutable after Load.
type Config struct {
	Host        string
	Port        uint16
	DataDir     string
	Federation  string
	BearerToken string

	CORSOrigin     string
	RateLimit      float64
	MetricsAddr    string
	BackupInterval time.Duration
	InvoiceTTL     time.Duration
	AutoSettle     time.Duration
	Stats          bool
}

// ErrHelp is returned by Load when the user asked for --help; the message
// has already been printed.
var ErrHelp = errors.New("help requested")

// Load parses args (without the program name) against the environment.
// A parse failure carries the go-flags diagnostic, e.g. for a non-numeric
// or out-of-range port.
func Load(args []string) (*Config, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	rest, err := parser.ParseArgs(args)
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, fe.Message)
			return nil, ErrHelp
		}
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", rest[0])
	}

	if opts.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		opts.DataDir = filepath.Join(home, ".local", "share", "blitzid")
	}
	if opts.Federation == "" {
		opts.Federation = DefaultFederation
	}
	if opts.BackupInterval <= 0 {
		return nil, fmt.Errorf("backup-interval must be positive, got %s", opts.BackupInterval)
	}
	if opts.InvoiceTTL <= 0 {
		return nil, fmt.Errorf("invoice-ttl must be positive, got %s", opts.InvoiceTTL)
	}
	if opts.RateLimit < 0 {
		return nil, fmt.Errorf("rate-limit must not be negative, got %v", opts.RateLimit)
	}

	return &Config{
		Host:        opts.Host,
		Port:        opts.Port,
		DataDir:     opts.DataDir,
		Federation:  opts.Federation,
		BearerToken: opts.BearerToken,

		CORSOrigin:     opts.CORSOrigin,
		RateLimit:      opts.RateLimit,
		MetricsAddr:    opts.MetricsAddr,
		BackupInterval: opts.BackupInterval,
		InvoiceTTL:     opts.InvoiceTTL,
		AutoSettle:     opts.AutoSettle,
		Stats:          opts.Stats,
	}, nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}
