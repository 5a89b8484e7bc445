package socks6

import "errors"

var (
	ErrUnsupportedVersion  = errors.New("socks6: unsupported version")
	ErrNotSocks6           = errors.New("socks6: first byte is not 0x06")
	ErrCommandNotSupported = errors.New("socks6: command not supported")
	ErrMalformedRequest    = errors.New("socks6: malformed request")
	ErrMalformedOptions    = errors.New("socks6: malformed options vector")
	ErrAuthFailed          = errors.New("socks6: authentication failed")
	ErrHandshakeFailed     = errors.New("socks6: handshake failed")
)
