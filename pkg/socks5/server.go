package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Iam54r1n4/socksix/pkg/ctxio"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// serverHandshake drives the server-side state machine: greeting ->
// method selection -> optional user/pass auth -> request.
// It stops short of sending the final success/failure reply — that is
// the caller's job once it knows whether the outbound connection (or
// chain hop) succeeded, via SendReply.
func (c *Conn) serverHandshake(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}

	if err := c.serverHandleGreeting(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if err := c.serverParseRequest(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}

	c.setHandshakeComplete()
	return nil
}

func (c *Conn) serverHandleGreeting(ctx context.Context) error {
	buf := make([]byte, 2)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %d", ErrUnsupportedVersion, buf[0])
	}
	c.greeting.version = buf[0]

	nMethods := buf[1]
	if nMethods == 0 {
		return fmt.Errorf("%w: nmethods=0", ErrInvalidNMethods)
	}
	c.greeting.nMethods = nMethods

	methods := make([]byte, nMethods)
	if _, err := ctxio.ReadFull(ctx, c.Conn, methods); err != nil {
		return fmt.Errorf("reading methods: %w", err)
	}
	c.greeting.methods = methods

	method, err := c.selectMethod()
	if err != nil {
		c.sendMethodSelection(ctx, MethodNoAcceptable)
		return err
	}
	if _, err := ctxio.Write(ctx, c.Conn, []byte{Version, method}); err != nil {
		return fmt.Errorf("sending method selection: %w", err)
	}

	if method == MethodUserPass {
		return c.serverHandleUserPassAuth(ctx)
	}
	return nil
}

// selectMethod offers no-auth unless credentials are configured, in
// which case only user/pass is acceptable.
func (c *Conn) selectMethod() (byte, error) {
	offeredNoAuth, offeredUserPass := false, false
	for _, m := range c.greeting.methods {
		switch m {
		case MethodNoAuth:
			offeredNoAuth = true
		case MethodUserPass:
			offeredUserPass = true
		}
	}

	if len(c.creds) > 0 {
		if offeredUserPass {
			return MethodUserPass, nil
		}
		return MethodNoAcceptable, fmt.Errorf("%w: user/pass required but not offered", ErrNoAcceptableMethod)
	}
	if offeredNoAuth {
		return MethodNoAuth, nil
	}
	return MethodNoAcceptable, fmt.Errorf("%w: offered methods %v", ErrNoAcceptableMethod, c.greeting.methods)
}

func (c *Conn) sendMethodSelection(ctx context.Context, method byte) {
	_, _ = ctxio.Write(ctx, c.Conn, []byte{Version, method})
}

func (c *Conn) serverHandleUserPassAuth(ctx context.Context) error {
	buf := make([]byte, 1)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading auth version: %w", err)
	}
	if buf[0] != userPassAuthVersion {
		return fmt.Errorf("%w: got %d", ErrUnsupportedAuthVersion, buf[0])
	}

	uLen := make([]byte, 1)
	if _, err := ctxio.ReadFull(ctx, c.Conn, uLen); err != nil {
		return fmt.Errorf("reading username length: %w", err)
	}
	username := make([]byte, uLen[0])
	if _, err := ctxio.ReadFull(ctx, c.Conn, username); err != nil {
		return fmt.Errorf("reading username: %w", err)
	}

	pLen := make([]byte, 1)
	if _, err := ctxio.ReadFull(ctx, c.Conn, pLen); err != nil {
		return fmt.Errorf("reading password length: %w", err)
	}
	password := make([]byte, pLen[0])
	if _, err := ctxio.ReadFull(ctx, c.Conn, password); err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	c.userPassAuth.username = username
	c.userPassAuth.password = password

	if pass, ok := c.creds[string(username)]; !ok || pass != string(password) {
		_, _ = ctxio.Write(ctx, c.Conn, []byte{userPassAuthVersion, userPassAuthFailed})
		return fmt.Errorf("%w: username %q", ErrAuthenticationFailed, username)
	}

	_, err := ctxio.Write(ctx, c.Conn, []byte{userPassAuthVersion, userPassAuthSuccess})
	return err
}

func (c *Conn) serverParseRequest(ctx context.Context) error {
	buf := make([]byte, 3)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading request header: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %d", ErrUnsupportedVersion, buf[0])
	}
	c.request.Version = buf[0]
	c.request.Cmd = buf[1]
	// buf[2] is RSV, ignored.

	if c.request.Cmd != CmdConnect {
		return fmt.Errorf("%w: cmd=%d", ErrCommandNotSupported, c.request.Cmd)
	}

	addr, err := socksaddr.ReadFrom(ctx, c.Conn)
	if err != nil {
		return errors.Join(ErrMalformedRequest, err)
	}
	c.request.Address = addr
	return nil
}

// SendReply writes the SOCKS5 reply for a completed (successful or
// failed) CONNECT attempt. bound is the address the proxy reports as
// its bound address; the zero Address is used when there is none to
// report.
func (c *Conn) SendReply(ctx context.Context, rep byte, bound socksaddr.Address) error {
	if bound.Type == 0 {
		bound = socksaddr.NewIP(zeroIPv4, 0)
	}
	r := reply{Version: Version, Rep: rep, Address: bound}
	b, err := r.bytes()
	if err != nil {
		return err
	}
	_, err = ctxio.Write(ctx, c.Conn, b)
	return err
}

var zeroIPv4 = net.IPv4zero
