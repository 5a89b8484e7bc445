// Package proxyurl parses the socks5://[user:pass@]host:port and
// socks6://[user:pass@]host:port grammar used by the --chain CLI flag
// (and the TOML config's equivalent chain list) into typed
// proxyaddr.ProxyAddress chain entries, built on the standard
// library's net/url for the scheme/userinfo/host/port split it already
// does correctly.
package proxyurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

var (
	ErrUnsupportedScheme = errors.New("proxyurl: unsupported scheme, want socks5:// or socks6://")
	ErrMissingHost       = errors.New("proxyurl: missing host")
	ErrMissingPort       = errors.New("proxyurl: missing port")
	ErrInvalidPort       = errors.New("proxyurl: invalid port")
)

// Parse parses a single socks(5|6)://[user:pass@]host:port URL into a
// ProxyAddress. Host may be an IPv4 literal, a bracketed IPv6 literal,
// or a domain name; port is mandatory.
func Parse(raw string) (proxyaddr.ProxyAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return proxyaddr.ProxyAddress{}, fmt.Errorf("proxyurl: %w", err)
	}

	var version byte
	switch u.Scheme {
	case "socks5":
		version = 5
	case "socks6":
		version = 6
	default:
		return proxyaddr.ProxyAddress{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return proxyaddr.ProxyAddress{}, ErrMissingHost
	}
	portStr := u.Port()
	if portStr == "" {
		return proxyaddr.ProxyAddress{}, ErrMissingPort
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return proxyaddr.ProxyAddress{}, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}

	var addr socksaddr.Address
	if ip := net.ParseIP(host); ip != nil {
		addr = socksaddr.NewIP(ip, uint16(port))
	} else {
		addr = socksaddr.NewDomain(host, uint16(port))
	}

	hop := proxyaddr.New(version, addr)
	if u.User != nil {
		password, _ := u.User.Password()
		hop = hop.WithCredentials(u.User.Username(), password)
	}
	return hop, nil
}

// ParseChain parses a sequence of proxy URLs in the order given; hops
// are traversed in that same order.
func ParseChain(raws []string) ([]proxyaddr.ProxyAddress, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	hops := make([]proxyaddr.ProxyAddress, 0, len(raws))
	for _, raw := range raws {
		hop, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		hops = append(hops, hop)
	}
	return hops, nil
}
