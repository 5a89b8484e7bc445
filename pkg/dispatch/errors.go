package dispatch

import "errors"

var (
	ErrNotListening    = errors.New("dispatch: listener not started")
	ErrAccept          = errors.New("dispatch: accept failed")
	ErrPeekFailed      = errors.New("dispatch: peeking protocol byte failed")
	ErrUnknownProtocol = errors.New("dispatch: unrecognized protocol byte")
	ErrHandshakeFailed = errors.New("dispatch: handshake failed")
	ErrDialFailed      = errors.New("dispatch: outbound dial failed")
	ErrReplyFailed     = errors.New("dispatch: sending reply failed")
	ErrRelayFailed     = errors.New("dispatch: relay failed")
)
