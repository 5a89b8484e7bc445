// Package socks5 implements the SOCKS5 (RFC 1928/1929) handshake state
// machine for both roles this proxy plays: a server accepting a local
// client's CONNECT request, and a client bridging to an upstream hop
// that only speaks SOCKS5 (see the chain package).
package socks5

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

const (
	Version byte = 0x05

	CmdConnect byte = 0x01
	CmdBind    byte = 0x02
	CmdUDP     byte = 0x03

	MethodNoAuth       byte = 0x00
	MethodUserPass     byte = 0x02
	MethodNoAcceptable byte = 0xFF

	userPassAuthVersion byte = 0x01
	userPassAuthSuccess byte = 0x00
	userPassAuthFailed  byte = 0x01

	// MaxGreetingSize bounds a client greeting: VER + NMETHODS + up to
	// 255 method bytes.
	MaxGreetingSize = 1 + 1 + 255
)

// Credentials maps each accepted username to its password. A nil
// map (or one with no entries) disables username/password auth and
// leaves only no-auth acceptable.
type Credentials map[string]string

// handshakeFunc performs one role's handshake (server or client) over
// the Conn it is bound to.
type handshakeFunc func(ctx context.Context) error

// Conn wraps a net.Conn and transparently performs the SOCKS5
// handshake on first use: an atomic completion flag plus a role-bound
// handshake function invoked lazily from Read/Write.
type Conn struct {
	net.Conn

	isClient bool
	creds    Credentials // server role only; nil disables user/pass auth

	greeting     greeting
	userPassAuth userPassAuth
	request      request
	reply        reply

	handshakeFn         handshakeFunc
	isHandshakeComplete atomic.Bool
}

// NewServerConn wraps an accepted connection for the SOCKS5 server
// role. creds may be nil to require no authentication.
func NewServerConn(c net.Conn, creds Credentials) *Conn {
	sc := &Conn{Conn: c, creds: creds}
	sc.handshakeFn = sc.serverHandshake
	return sc
}

// NewClientConn wraps a freshly dialed connection for the SOCKS5
// client role, used by the chain driver when bridging to a hop that
// only speaks SOCKS5. dest is the address the hop is asked to CONNECT
// to: the final destination, or the next hop's address when bridging.
func NewClientConn(c net.Conn, dest socksaddr.Address, creds *struct{ Username, Password string }) *Conn {
	cc := &Conn{Conn: c, isClient: true}
	cc.request.Address = dest
	if creds != nil {
		cc.userPassAuth.username = []byte(creds.Username)
		cc.userPassAuth.password = []byte(creds.Password)
	}
	cc.handshakeFn = cc.clientHandshake
	return cc
}

// Handshake performs the handshake with a background context.
func (c *Conn) Handshake() error {
	return c.HandshakeContext(context.Background())
}

// HandshakeContext performs the handshake, honoring ctx cancellation.
// It is idempotent: once complete, subsequent calls are no-ops.
func (c *Conn) HandshakeContext(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}
	return c.handshakeFn(ctx)
}

func (c *Conn) setHandshakeComplete() { c.isHandshakeComplete.Store(true) }

// HandshakeComplete reports whether the handshake has finished.
func (c *Conn) HandshakeComplete() bool { return c.isHandshakeComplete.Load() }

// Read performs the handshake on first use, then reads application
// data (or, for the server role, any bytes the client pipelined after
// its request).
func (c *Conn) Read(b []byte) (int, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// Write performs the handshake on first use, then writes application
// data.
func (c *Conn) Write(b []byte) (int, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// Destination returns the address the handshake negotiated, completing
// the handshake first if necessary. For the server role this is the
// client's requested destination; for the client role it is the
// destination that was requested from the hop.
func (c *Conn) Destination() (socksaddr.Address, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return socksaddr.Address{}, err
		}
	}
	return c.request.Address, nil
}
