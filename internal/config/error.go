package config

import "errors"

var (
	ErrInvalidProtocol   = errors.New("config: protocol must be socks5 or socks6")
	ErrInvalidPort       = errors.New("config: port out of range")
	ErrInvalidChain      = errors.New("config: invalid chain entry")
	ErrInvalidConfigFile = errors.New("config: invalid config file")
)
