// Package chain implements the chain driver: acting as a client
// against an upstream hop, forwarding the remainder of a client's
// handshake so that the final hop connects to the actual destination.
// An N-hop chain is driven by recursing one hop at a time rather than
// modeling the whole path as a graph.
package chain

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/reply"
	"github.com/Iam54r1n4/socksix/pkg/socks5"
	"github.com/Iam54r1n4/socksix/pkg/socks6"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// Dialer opens the TCP leg to each hop; swappable in tests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

var defaultDialer Dialer = &net.Dialer{}

// Dial opens a connection to the first hop and drives the chain
// forward until dest is reached, returning the established connection
// ready to serve as the relay's outbound stream. residual is the
// (possibly empty) list of hops remaining after hop; it becomes the
// outgoing chain option on a SOCKS6 hop, or — on a SOCKS5 hop, which
// has no chain option — the bridge target for a nested tunnel (see
// dialHop). initialData is written to the established stream before
// the caller starts relaying, realizing SOCKS6's 0-RTT forwarding when
// the path is all-SOCKS6.
//
// The returned reply.Kind follows a simple hop-translation rule: a
// standard code the hop itself reported is forwarded verbatim; a
// connect-level failure reaching the hop folds to GeneralFailure so
// the client never learns a chain exists.
func Dial(ctx context.Context, hop proxyaddr.ProxyAddress, residual []proxyaddr.ProxyAddress, dest socksaddr.Address, initialData []byte) (net.Conn, reply.Kind, error) {
	return dial(ctx, defaultDialer, hop, residual, dest, initialData)
}

func dial(ctx context.Context, dialer Dialer, hop proxyaddr.ProxyAddress, residual []proxyaddr.ProxyAddress, dest socksaddr.Address, initialData []byte) (net.Conn, reply.Kind, error) {
	conn, err := dialer.DialContext(ctx, "tcp", hop.Target.String())
	if err != nil {
		return nil, reply.FromHop(reply.GeneralFailure, err), fmt.Errorf("%w: %v", ErrHopDialFailed, err)
	}

	out, hopRep, err := dialHop(ctx, conn, hop, dest, residual, initialData)
	if err != nil {
		conn.Close()
		return nil, reply.FromHop(hopRep, err), err
	}
	if hopRep != reply.Success {
		conn.Close()
		return nil, hopRep, fmt.Errorf("%w: %s", ErrHopRefused, hopRep)
	}
	return out, reply.Success, nil
}

// dialHop performs the hop-specific handshake over a connection that
// already reaches hop (freshly dialed TCP, or — recursively — an
// already-tunneled SOCKS5 bridge). It never dials TCP itself.
func dialHop(ctx context.Context, conn net.Conn, hop proxyaddr.ProxyAddress, dest socksaddr.Address, residual []proxyaddr.ProxyAddress, initialData []byte) (net.Conn, reply.Kind, error) {
	switch hop.Version {
	case socks6.Version:
		return dialSocks6Hop(ctx, conn, dest, residual, initialData)
	case socks5.Version:
		return dialSocks5Hop(ctx, conn, hop, dest, residual, initialData)
	default:
		return nil, reply.GeneralFailure, fmt.Errorf("%w: unsupported hop version %d", ErrHopHandshakeFailed, hop.Version)
	}
}

func dialSocks6Hop(ctx context.Context, conn net.Conn, dest socksaddr.Address, residual []proxyaddr.ProxyAddress, initialData []byte) (net.Conn, reply.Kind, error) {
	cc := socks6.NewClientConn(conn, dest, residual, initialData)
	if err := cc.HandshakeContext(ctx); err != nil {
		return nil, reply.GeneralFailure, errors.Join(ErrHopHandshakeFailed, err)
	}
	rep, _, err := cc.Reply()
	if err != nil {
		return nil, reply.GeneralFailure, errors.Join(ErrHopHandshakeFailed, err)
	}
	kind := reply.FromWireCode(rep)
	if kind != reply.Success {
		return nil, kind, nil
	}
	return cc, reply.Success, nil
}

// dialSocks5Hop bridges a chain hop that only speaks SOCKS5: since
// SOCKS5 carries no chain option, a residual chain is realized by
// asking the hop to CONNECT to the next
// hop's own listening address and then recursing the remaining chain
// over that tunnel. With no residual left, the hop is asked to CONNECT
// straight to dest and, since SOCKS5 has no 0-RTT slot, initialData is
// written as an ordinary post-handshake write instead of being embedded
// in the request.
func dialSocks5Hop(ctx context.Context, conn net.Conn, hop proxyaddr.ProxyAddress, dest socksaddr.Address, residual []proxyaddr.ProxyAddress, initialData []byte) (net.Conn, reply.Kind, error) {
	target := dest
	if len(residual) > 0 {
		target = residual[0].Target
	}

	cc := socks5.NewClientConn(conn, target, socks5Creds(hop))
	if err := cc.HandshakeContext(ctx); err != nil {
		return nil, reply.GeneralFailure, errors.Join(ErrHopHandshakeFailed, err)
	}
	rep, _, err := cc.Reply()
	if err != nil {
		return nil, reply.GeneralFailure, errors.Join(ErrHopHandshakeFailed, err)
	}
	kind := reply.FromWireCode(rep)
	if kind != reply.Success {
		return nil, kind, nil
	}

	if len(residual) == 0 {
		if len(initialData) > 0 {
			if _, err := cc.Write(initialData); err != nil {
				return nil, reply.GeneralFailure, errors.Join(ErrHopHandshakeFailed, err)
			}
		}
		return cc, reply.Success, nil
	}

	// The tunnel now reaches residual[0]'s listening address; recurse
	// the remaining chain over it without a fresh TCP dial.
	return dialHop(ctx, cc, residual[0], dest, residual[1:], initialData)
}

func socks5Creds(hop proxyaddr.ProxyAddress) *struct{ Username, Password string } {
	if hop.Credentials == nil {
		return nil
	}
	return &struct{ Username, Password string }{
		Username: hop.Credentials.Username,
		Password: hop.Credentials.Password,
	}
}
