// Package socks6 implements the SOCKS6 (draft-olteanu-intarea-socks-6-11)
// handshake state machine for both roles this proxy plays: a server
// accepting the single collapsed request message, and a client driving
// the same message against an upstream chain hop.
package socks6

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksopt"
)

const (
	Version byte = 0x06

	CmdConnect byte = 0x01
	CmdBind    byte = 0x02

	authMethodNoAuth byte = 0x00

	// MaxOptionsVectorSize bounds a request's options section. It lies
	// above 65535, the largest length the 16-bit OPTLEN field can
	// declare, so every declared options length passes this check.
	MaxOptionsVectorSize = 1 << 16
)

type handshakeFunc func(ctx context.Context) error

// Conn wraps a net.Conn and performs the SOCKS6 handshake lazily on
// first use, the same atomic-flag-plus-handshakeFn shape as socks5.Conn.
type Conn struct {
	net.Conn

	isClient bool

	header        fixedHeader
	options       []socksopt.Option
	initialData   []byte
	nextHop       proxyaddr.ProxyAddress
	hasChain      bool
	residualChain []proxyaddr.ProxyAddress
	aReply        authReply
	oReply        operationReply

	handshakeFn         handshakeFunc
	isHandshakeComplete atomic.Bool
}

// NewServerConn wraps an accepted connection for the SOCKS6 server role.
func NewServerConn(c net.Conn) *Conn {
	sc := &Conn{Conn: c}
	sc.handshakeFn = sc.serverHandshake
	return sc
}

// NewClientConn wraps a freshly dialed connection for the SOCKS6
// client role, used both to drive the chain forward and, on the very
// last hop, to reach the true destination. dest is the final
// destination carried through the whole chain; residual is the chain
// option payload to forward (possibly empty, in which case the option
// is omitted); initialData is written as part of the request for 0-RTT
// forwarding.
func NewClientConn(c net.Conn, dest socksaddr.Address, residual []proxyaddr.ProxyAddress, initialData []byte) *Conn {
	cc := &Conn{Conn: c, isClient: true}
	cc.header.Address = dest
	cc.residualChain = residual
	cc.initialData = initialData
	cc.handshakeFn = cc.clientHandshake
	return cc
}

// Handshake performs the handshake with a background context.
func (c *Conn) Handshake() error { return c.HandshakeContext(context.Background()) }

// HandshakeContext performs the handshake, honoring ctx cancellation.
// Idempotent once complete.
func (c *Conn) HandshakeContext(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}
	return c.handshakeFn(ctx)
}

func (c *Conn) setHandshakeComplete() { c.isHandshakeComplete.Store(true) }

// HandshakeComplete reports whether the handshake has finished.
func (c *Conn) HandshakeComplete() bool { return c.isHandshakeComplete.Load() }

// Read performs the handshake on first use, then reads relay data.
func (c *Conn) Read(b []byte) (int, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// Write performs the handshake on first use, then writes relay data.
func (c *Conn) Write(b []byte) (int, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// Destination returns the request's final destination, completing the
// handshake first if necessary.
func (c *Conn) Destination() (socksaddr.Address, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return socksaddr.Address{}, err
		}
	}
	return c.header.Address, nil
}

// Chain returns the (nextHop, residual) split the server role parsed
// from the request's chain option. ok is false when the request carried
// no chain option at all (a direct, non-chained CONNECT).
func (c *Conn) Chain() (next proxyaddr.ProxyAddress, residual []proxyaddr.ProxyAddress, ok bool) {
	if !c.hasChain {
		return proxyaddr.ProxyAddress{}, nil, false
	}
	return c.nextHop, c.residualChain, true
}

// InitialData returns the bytes the client sent for 0-RTT forwarding
// (server role) or that the handshake sent on the client's behalf.
func (c *Conn) InitialData() []byte { return c.initialData }

// Reply returns the operation reply's REP byte and bound address once
// the client-role handshake has read it.
func (c *Conn) Reply() (byte, socksaddr.Address, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, socksaddr.Address{}, err
		}
	}
	return c.oReply.Rep, c.oReply.Address, nil
}
