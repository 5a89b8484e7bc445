package socks5

import "errors"

var (
	ErrUnsupportedVersion     = errors.New("socks5: unsupported version")
	ErrInvalidNMethods        = errors.New("socks5: invalid NMETHODS value")
	ErrNoAcceptableMethod     = errors.New("socks5: no acceptable authentication method")
	ErrUnsupportedAuthVersion = errors.New("socks5: unsupported username/password auth version")
	ErrAuthenticationFailed   = errors.New("socks5: authentication failed")
	ErrCommandNotSupported    = errors.New("socks5: command not supported")
	ErrMalformedRequest       = errors.New("socks5: malformed request")
	ErrHandshakeFailed        = errors.New("socks5: handshake failed")
)
