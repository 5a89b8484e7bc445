// Package flags defines the command-line surface: package-level vars
// populated by flag.*Var calls in init(), read directly by callers
// rather than threaded through as parameters.
package flags

import (
	"flag"
	"strings"
)

// chainValue accumulates repeated --chain occurrences in the order
// given, implementing flag.Value so flag.Var can bind to it.
type chainValue []string

func (c *chainValue) String() string { return strings.Join(*c, ",") }

func (c *chainValue) Set(v string) error {
	*c = append(*c, v)
	return nil
}

// The program's flags.
var (
	// Host is the bind address.
	Host string
	// Port is the bind port.
	Port int
	// Protocol names the listening protocol; "socks5" or "socks6". It
	// is validated and recorded in the config, but the dispatcher serves
	// both protocols on the port whatever its value.
	Protocol string
	// Chain holds one upstream proxy URL per --chain occurrence, in the
	// order they were given.
	Chain chainValue
	// ConfigPath is an optional TOML file supplementing these flags
	// (additional chain hops, SOCKS5 credentials, timeouts).
	ConfigPath string
)

// Default values for the flags.
const (
	defaultHost     = "127.0.0.1"
	defaultPort     = 1080
	defaultProtocol = "socks5"
)

func init() {
	flag.StringVar(&Host, "host", defaultHost, "bind address")
	flag.IntVar(&Port, "port", defaultPort, "bind port")
	flag.StringVar(&Protocol, "protocol", defaultProtocol, "listening protocol: socks5 or socks6")
	flag.Var(&Chain, "chain", "upstream proxy URL (socks5://... or socks6://...); repeatable, traversed in the order given")
	flag.StringVar(&ConfigPath, "config", "", "optional TOML config file supplementing these flags")

	flag.Parse()
}
