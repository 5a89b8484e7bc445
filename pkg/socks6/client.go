package socks6

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iam54r1n4/socksix/pkg/ctxio"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksopt"
)

// clientHandshake sends the single collapsed request message — fixed
// header, options vector (carrying the residual chain, if any), and
// initial data — then reads the auth reply followed by the operation
// reply, letting the chain driver reuse this same path against each hop.
func (c *Conn) clientHandshake(ctx context.Context) error {
	if c.HandshakeComplete() {
		return nil
	}

	req, err := c.buildRequest()
	if err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if _, err := ctxio.Write(ctx, c.Conn, req); err != nil {
		return errors.Join(ErrHandshakeFailed, fmt.Errorf("sending request: %w", err))
	}

	if err := c.clientReadAuthReply(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}
	if err := c.clientReadOperationReply(ctx); err != nil {
		return errors.Join(ErrHandshakeFailed, err)
	}

	c.setHandshakeComplete()
	return nil
}

func (c *Conn) buildRequest() ([]byte, error) {
	var opts []socksopt.Option
	if len(c.residualChain) > 0 {
		chainOpt, err := socksopt.EncodeChain(c.residualChain)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chainOpt)
	}
	optVec, err := socksopt.EncodeVector(opts)
	if err != nil {
		return nil, err
	}
	// EncodeVector's own 16-bit length prefix is redundant with OPTLEN
	// in the fixed header, so only the option bytes after it are kept.
	optBytes := optVec[2:]

	b := []byte{Version, CmdConnect}
	b, err = c.header.Address.Encode(b)
	if err != nil {
		return nil, err
	}

	var tail [fixedHeaderTailSize]byte
	// tail[0] padding, tail[1] flags: both zero.
	tail[2] = byte(len(c.initialData) >> 8)
	tail[3] = byte(len(c.initialData))
	tail[4] = byte(len(optBytes) >> 8)
	tail[5] = byte(len(optBytes))
	b = append(b, tail[:]...)
	b = append(b, optBytes...)
	b = append(b, c.initialData...)
	return b, nil
}

func (c *Conn) clientReadAuthReply(ctx context.Context) error {
	buf := make([]byte, 2)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %#x", ErrUnsupportedVersion, buf[0])
	}
	c.aReply = authReply{Version: buf[0], Method: buf[1]}
	if buf[1] != authMethodNoAuth {
		return fmt.Errorf("%w: hop selected method %#x", ErrAuthFailed, buf[1])
	}
	return nil
}

func (c *Conn) clientReadOperationReply(ctx context.Context) error {
	buf := make([]byte, 3)
	if _, err := ctxio.ReadFull(ctx, c.Conn, buf); err != nil {
		return fmt.Errorf("reading operation reply: %w", err)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: got %#x", ErrUnsupportedVersion, buf[0])
	}
	c.oReply.Version = buf[0]
	c.oReply.Rep = buf[1]

	bound, err := socksaddr.ReadFrom(ctx, c.Conn)
	if err != nil {
		return errors.Join(ErrMalformedRequest, err)
	}
	c.oReply.Address = bound
	return nil
}
