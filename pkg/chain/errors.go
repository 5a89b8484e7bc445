package chain

import "errors"

var (
	// ErrHopDialFailed covers a TCP-level failure connecting to a hop
	// itself, as opposed to a failure the hop reports after connecting.
	ErrHopDialFailed = errors.New("chain: dialing hop failed")
	// ErrHopHandshakeFailed covers a protocol-level failure talking to a
	// hop (malformed reply, auth rejected, wrong version).
	ErrHopHandshakeFailed = errors.New("chain: hop handshake failed")
	// ErrHopRefused means the hop completed its handshake but reported a
	// non-success operation reply.
	ErrHopRefused = errors.New("chain: hop refused the request")
)
