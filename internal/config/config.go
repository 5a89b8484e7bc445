// Package config assembles the listener configuration from CLI flags
// (the primary config surface) and, optionally, a supplementary TOML
// file for settings that don't fit comfortably on a command line (a
// long chain, a credentials table). Follows a validate-then-apply-
// defaults pipeline: chain hops from the TOML file are appended after
// the CLI's, and its other settings only fill in what the CLI left
// unset.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/proxyurl"
	"github.com/Iam54r1n4/socksix/pkg/socks5"
)

// defaultDialTimeout and defaultHandshakeTimeout are the fallback
// timeouts applied when neither the CLI nor a config file sets one;
// the handshake gets a longer allowance since it may involve a
// multi-round options negotiation.
const (
	defaultDialTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
)

// timeoutConfig is the TOML-file-only timeout override table.
type timeoutConfig struct {
	DialTimeout      int `toml:"dialTimeout"`      // seconds
	HandshakeTimeout int `toml:"handshakeTimeout"` // seconds
}

// fileConfig is the optional supplementary TOML document; every field
// is additive to (never a replacement for) the CLI flags.
type fileConfig struct {
	Chain             []string          `toml:"chain"`
	Socks5Credentials map[string]string `toml:"socks5Credentials"`
	Timeout           timeoutConfig     `toml:"timeout"`
}

// Options is the raw input gathered from the CLI flags (see
// internal/flags) before validation and default application.
type Options struct {
	Host       string
	Port       int
	Protocol   string
	ChainURLs  []string
	ConfigPath string
}

// ServerConfig is the immutable, process-wide listener configuration
// shared by reference across every accepted connection.
type ServerConfig struct {
	Host              string
	Port              int
	Protocol          byte // 5 or 6; informational only — the dispatcher always serves both
	Chain             []proxyaddr.ProxyAddress
	Socks5Credentials socks5.Credentials
	DialTimeout       time.Duration
	HandshakeTimeout  time.Duration
}

// Load builds a ServerConfig from o, optionally enriched by a TOML file
// at o.ConfigPath, and validates the result. A non-nil error means
// config load failed and the caller must exit with a non-zero status.
func Load(o Options) (*ServerConfig, error) {
	var protocol byte
	switch o.Protocol {
	case "socks5":
		protocol = 5
	case "socks6":
		protocol = 6
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, o.Protocol)
	}

	chain, err := proxyurl.ParseChain(o.ChainURLs)
	if err != nil {
		return nil, errors.Join(ErrInvalidChain, err)
	}

	cfg := &ServerConfig{
		Host:     o.Host,
		Port:     o.Port,
		Protocol: protocol,
		Chain:    chain,
	}

	if o.ConfigPath != "" {
		if err := cfg.applyFile(o.ConfigPath); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaultValues()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile merges a supplementary TOML document into cfg: its chain
// entries are appended after any CLI-supplied hops, its credentials
// table is adopted only if the CLI didn't already configure one, and
// its timeouts fill in zero values.
func (c *ServerConfig) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return errors.Join(ErrInvalidConfigFile, err)
	}

	fileHops, err := proxyurl.ParseChain(fc.Chain)
	if err != nil {
		return errors.Join(ErrInvalidChain, err)
	}
	c.Chain = append(c.Chain, fileHops...)

	if len(fc.Socks5Credentials) > 0 && c.Socks5Credentials == nil {
		c.Socks5Credentials = fc.Socks5Credentials
	}

	if fc.Timeout.DialTimeout > 0 {
		c.DialTimeout = time.Duration(fc.Timeout.DialTimeout) * time.Second
	}
	if fc.Timeout.HandshakeTimeout > 0 {
		c.HandshakeTimeout = time.Duration(fc.Timeout.HandshakeTimeout) * time.Second
	}
	return nil
}

// applyDefaultValues fills in any setting left at its zero value.
func (c *ServerConfig) applyDefaultValues() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

// validate checks cfg for invalid values.
func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Protocol != 5 && c.Protocol != 6 {
		return ErrInvalidProtocol
	}
	return nil
}
