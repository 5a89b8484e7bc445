package socks5

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iam54r1n4/socksix/pkg/ctxio"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// clientHandshake dials out as a SOCKS5 client against an upstream hop:
// the method/auth negotiation and the CONNECT request are sent back to
// back, since only one authentication method is ever offered and
// there is no reason to wait for a roundtrip before sending it.
func (c *Conn) clientHandshake(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}

	method := MethodNoAuth
	if len(c.userPassAuth.username) > 0 {
		method = MethodUserPass
	}
	greetAndReq := []byte{Version, 1, method}
	if method == MethodUserPass {
		greetAndReq = append(greetAndReq, userPassAuthVersion, byte(len(c.userPassAuth.username)))
		greetAndReq = append(greetAndReq, c.userPassAuth.username...)
		greetAndReq = append(greetAndReq, byte(len(c.userPassAuth.password)))
		greetAndReq = append(greetAndReq, c.userPassAuth.password...)
	}
	greetAndReq = append(greetAndReq, Version, CmdConnect, 0x00)
	var err error
	greetAndReq, err = c.request.Address.Encode(greetAndReq)
	if err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}

	if _, err := ctxio.Write(ctx, c.Conn, greetAndReq); err != nil {
		return errors.Join(ErrHandshakeFailed, fmt.Errorf("sending greeting and request: %w", err))
	}

	if err := c.clientReadMethodSelection(ctx, method); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if err := c.clientReadReply(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}

	c.setHandshakeComplete()
	return nil
}

func (c *Conn) clientReadMethodSelection(ctx context.Context, wantMethod byte) error {
	buf := make([]byte, 2)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading method selection: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %d", ErrUnsupportedVersion, buf[0])
	}
	if buf[1] != wantMethod {
		return fmt.Errorf("%w: hop selected %d, wanted %d", ErrNoAcceptableMethod, buf[1], wantMethod)
	}

	if wantMethod != MethodUserPass {
		return nil
	}

	status := make([]byte, 2)
	if _, err := ctxio.ReadFull(ctx, c.Conn, status); err != nil {
		return fmt.Errorf("reading auth status: %w", err)
	}
	if status[0] != userPassAuthVersion {
		return fmt.Errorf("%w: got %d", ErrUnsupportedAuthVersion, status[0])
	}
	if status[1] != userPassAuthSuccess {
		return ErrAuthenticationFailed
	}
	return nil
}

func (c *Conn) clientReadReply(ctx context.Context) error {
	buf := make([]byte, 3)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading reply header: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %d", ErrUnsupportedVersion, buf[0])
	}
	c.reply.Version = buf[0]
	c.reply.Rep = buf[1]

	bound, err := socksaddr.ReadFrom(ctx, c.Conn)
	if err != nil {
		return errors.Join(ErrMalformedRequest, err)
	}
	c.reply.Address = bound
	return nil
}

// Reply returns the REP byte and bound address the hop sent back,
// completing the handshake first if necessary. Valid only for client
// role connections.
func (c *Conn) Reply() (byte, socksaddr.Address, error) {
	if !c.HandshakeComplete() {
		if err := c.Handshake(); err != nil {
			return 0, socksaddr.Address{}, err
		}
	}
	return c.reply.Rep, c.reply.Address, nil
}
