// Package proxyaddr defines ProxyAddress, the immutable chain-hop
// descriptor shared by the chain option codec, the chain driver, the
// proxy-URL parser and startup configuration.
package proxyaddr

import "github.com/Iam54r1n4/socksix/pkg/socksaddr"

// Credentials holds an optional username/password pair a hop is dialed
// with. Each field, when set, is 1..=255 bytes per the SOCKS5/6
// username-password subnegotiation.
type Credentials struct {
	Username string
	Password string
}

// ProxyAddress is one hop in a chain: which protocol version it speaks,
// where it listens, and the credentials to present to it (if any).
// Constructed once at startup and never mutated afterwards; safe to
// share by reference across every accepted connection.
type ProxyAddress struct {
	Version     byte // 5 or 6
	Target      socksaddr.Address
	Credentials *Credentials // nil when the hop requires no authentication
}

// New builds a ProxyAddress for a SOCKS hop with no credentials.
func New(version byte, target socksaddr.Address) ProxyAddress {
	return ProxyAddress{Version: version, Target: target}
}

// WithCredentials returns a copy of p carrying the given credentials.
func (p ProxyAddress) WithCredentials(username, password string) ProxyAddress {
	p.Credentials = &Credentials{Username: username, Password: password}
	return p
}
