package socks6

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Iam54r1n4/socksix/pkg/ctxio"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksopt"
)

// serverHandshake drives the server-side state machine: read the
// fixed header, then the declared-length options and initial
// data sections, in one shot, since the client sends all of it
// unprompted. It stops short of the auth/operation replies — those are
// sent once the caller knows whether the outbound dial succeeded, via
// SendAuthReply/SendOperationReply.
func (c *Conn) serverHandshake(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}

	if err := c.serverReadHeader(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if err := c.serverReadOptions(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if err := c.serverReadInitialData(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if c.header.Cmd != CmdConnect {
		return fmt.Errorf("%w: cmd=%d", ErrCommandNotSupported, c.header.Cmd)
	}
	if err := c.parseChainOption(); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}

	c.setHandshakeComplete()
	return nil
}

// serverReadHeader reads VER, CMD, DST address, padding, flags,
// IDATALEN and OPTLEN. A peer that isn't speaking SOCKS6 at all gets
// no reply at all — the caller is expected to close the
// connection on ErrNotSocks6 without writing anything back.
func (c *Conn) serverReadHeader(ctx context.Context) error {
	var verBuf [1]byte
	if _, err := ctxio.ReadFull(ctx, c.Conn, verBuf[:]); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	if verBuf[0] != Version {
		return fmt.Errorf("%w: got %#x", ErrNotSocks6, verBuf[0])
	}
	c.header.Version = verBuf[0]

	var cmdBuf [1]byte
	if _, err := ctxio.ReadFull(ctx, c.Conn, cmdBuf[:]); err != nil {
		return fmt.Errorf("reading command: %w", err)
	}
	c.header.Cmd = cmdBuf[0]

	addr, err := socksaddr.ReadFrom(ctx, c.Conn)
	if err != nil {
		return errors.Join(ErrMalformedRequest, err)
	}
	c.header.Address = addr

	tail := make([]byte, fixedHeaderTailSize)
	if _, err := ctxio.ReadFull(ctx, c.Conn, tail); err != nil {
		return fmt.Errorf("reading header tail: %w", err)
	}
	// tail[0] is padding, tail[1] is flags: both reserved, ignored.
	c.header.initialDataLen = uint16(tail[2])<<8 | uint16(tail[3])
	c.header.optionsLen = uint16(tail[4])<<8 | uint16(tail[5])

	return nil
}

func (c *Conn) serverReadOptions(ctx context.Context) error {
	if c.header.optionsLen == 0 {
		return nil
	}
	if int(c.header.optionsLen) > MaxOptionsVectorSize {
		return fmt.Errorf("%w: options length %d too large", ErrMalformedOptions, c.header.optionsLen)
	}
	buf := make([]byte, c.header.optionsLen)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading options vector: %w", err)
	}
	opts, _, err := socksopt.DecodeVector(append(prependVectorLen(c.header.optionsLen), buf...))
	if err != nil {
		return errors.Join(ErrMalformedOptions, err)
	}
	c.options = opts
	return nil
}

// prependVectorLen reconstructs the 16-bit length prefix DecodeVector
// expects, since the fixed header already carried that length
// separately from the vector bytes themselves.
func prependVectorLen(n uint16) []byte {
	return []byte{byte(n >> 8), byte(n)}
}

func (c *Conn) serverReadInitialData(ctx context.Context) error {
	if c.header.initialDataLen == 0 {
		return nil
	}
	buf := make([]byte, c.header.initialDataLen)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading initial data: %w", err)
	}
	c.initialData = buf
	return nil
}

func (c *Conn) parseChainOption() error {
	if _, found := socksopt.Find(c.options, socksopt.KindChain); !found {
		return nil
	}
	next, residual, rewritten, ok, err := socksopt.PopChain(c.options)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.nextHop = next
	c.residualChain = residual
	c.hasChain = true
	c.options = rewritten
	return nil
}

// SendAuthReply writes the collapsed no-auth method reply.
func (c *Conn) SendAuthReply(ctx context.Context) error {
	r := authReply{Version: Version, Method: authMethodNoAuth}
	_, err := ctxio.Write(ctx, c.Conn, r.bytes())
	return err
}

// SendOperationReply writes the final reply reporting the CONNECT
// outcome. bound is the proxy's reported bound address; the zero
// Address is replaced with 0.0.0.0:0 when there is none to report.
func (c *Conn) SendOperationReply(ctx context.Context, rep byte, bound socksaddr.Address) error {
	if bound.Type == 0 {
		bound = socksaddr.NewIP(zeroIPv4, 0)
	}
	r := operationReply{Version: Version, Rep: rep, Address: bound}
	b, err := r.bytes()
	if err != nil {
		return err
	}
	_, err = ctxio.Write(ctx, c.Conn, b)
	return err
}

var zeroIPv4 = net.IPv4zero
