// Package socksaddr implements the SOCKS address codec shared by the
// SOCKS5 and SOCKS6 wire formats: the (ATYP, address, port) triple used
// both for a request's destination and a reply's bound address.
package socksaddr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/Iam54r1n4/socksix/pkg/ctxio"
)

// Address type tags, shared verbatim between SOCKS5 and SOCKS6.
const (
	ATYPIPv4   byte = 0x01
	ATYPDomain byte = 0x03
	ATYPIPv6   byte = 0x04
)

// PortSize is the size, in bytes, of the big-endian port field.
const PortSize = 2

var (
	ErrUnsupportedAddressType = errors.New("socksaddr: unsupported address type")
	ErrEmptyDomain            = errors.New("socksaddr: domain length is zero")
	ErrTruncated              = errors.New("socksaddr: truncated address")
)

// Address is a tagged destination: exactly one of IP or Domain is set,
// matching the three wire variants (IPv4, IPv6, domain name).
type Address struct {
	Type   byte
	IP     net.IP // set when Type is ATYPIPv4 or ATYPIPv6
	Domain string // set when Type is ATYPDomain
	Port   uint16
}

// NewIP builds an Address from a net.IP, picking IPv4 or IPv6 by length.
func NewIP(ip net.IP, port uint16) Address {
	if ip4 := ip.To4(); ip4 != nil {
		return Address{Type: ATYPIPv4, IP: ip4, Port: port}
	}
	return Address{Type: ATYPIPv6, IP: ip.To16(), Port: port}
}

// NewDomain builds a domain-name Address.
func NewDomain(name string, port uint16) Address {
	return Address{Type: ATYPDomain, Domain: name, Port: port}
}

// String renders the address the way net.JoinHostPort would, suitable
// for net.Dial.
func (a Address) String() string {
	host := a.Domain
	if a.Type != ATYPDomain {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, fmt.Sprint(a.Port))
}

// Size returns the wire-encoded length in bytes.
func (a Address) Size() int {
	switch a.Type {
	case ATYPIPv4:
		return 1 + net.IPv4len + PortSize
	case ATYPIPv6:
		return 1 + net.IPv6len + PortSize
	case ATYPDomain:
		return 1 + 1 + len(a.Domain) + PortSize
	default:
		return 0
	}
}

// Encode appends the wire form of a to b and returns the result.
func (a Address) Encode(b []byte) ([]byte, error) {
	switch a.Type {
	case ATYPIPv4:
		ip4 := a.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%w: IPv4 address has wrong length", ErrUnsupportedAddressType)
		}
		b = append(b, ATYPIPv4)
		b = append(b, ip4...)
	case ATYPIPv6:
		ip6 := a.IP.To16()
		if ip6 == nil {
			return nil, fmt.Errorf("%w: IPv6 address has wrong length", ErrUnsupportedAddressType)
		}
		b = append(b, ATYPIPv6)
		b = append(b, ip6...)
	case ATYPDomain:
		if len(a.Domain) == 0 {
			return nil, ErrEmptyDomain
		}
		if len(a.Domain) > 255 {
			return nil, fmt.Errorf("socksaddr: domain length %d exceeds 255", len(a.Domain))
		}
		b = append(b, ATYPDomain, byte(len(a.Domain)))
		b = append(b, a.Domain...)
	default:
		return nil, ErrUnsupportedAddressType
	}
	var portBytes [PortSize]byte
	portBytes[0] = byte(a.Port >> 8)
	portBytes[1] = byte(a.Port)
	b = append(b, portBytes[:]...)
	return b, nil
}

// Decode parses an Address from the head of b and returns the remaining,
// unconsumed bytes. It performs a single-shot parse over an in-memory
// prefix; it does not block waiting for more bytes to arrive.
func Decode(b []byte) (Address, []byte, error) {
	if len(b) < 1 {
		return Address{}, nil, ErrTruncated
	}
	atyp := b[0]
	b = b[1:]

	var addr Address
	addr.Type = atyp
	switch atyp {
	case ATYPIPv4:
		if len(b) < net.IPv4len {
			return Address{}, nil, ErrTruncated
		}
		addr.IP = net.IP(append(net.IP{}, b[:net.IPv4len]...))
		b = b[net.IPv4len:]
	case ATYPIPv6:
		if len(b) < net.IPv6len {
			return Address{}, nil, ErrTruncated
		}
		addr.IP = net.IP(append(net.IP{}, b[:net.IPv6len]...))
		b = b[net.IPv6len:]
	case ATYPDomain:
		if len(b) < 1 {
			return Address{}, nil, ErrTruncated
		}
		n := int(b[0])
		b = b[1:]
		if n == 0 {
			return Address{}, nil, ErrEmptyDomain
		}
		if len(b) < n {
			return Address{}, nil, ErrTruncated
		}
		addr.Domain = string(b[:n])
		b = b[n:]
	default:
		return Address{}, nil, fmt.Errorf("%w: atyp=%d", ErrUnsupportedAddressType, atyp)
	}

	if len(b) < PortSize {
		return Address{}, nil, ErrTruncated
	}
	addr.Port = uint16(b[0])<<8 | uint16(b[1])
	b = b[PortSize:]

	return addr, b, nil
}

// ReadFrom reads one Address directly off a live connection, one
// declared-length section at a time, the way a handshake reads a
// request's DST.ADDR/DST.PORT.
func ReadFrom(ctx context.Context, c net.Conn) (Address, error) {
	var tagBuf [1]byte
	if _, err := ctxio.ReadFull(ctx, c, tagBuf[:]); err != nil {
		return Address{}, errors.Join(ErrTruncated, err)
	}
	atyp := tagBuf[0]

	var addr Address
	addr.Type = atyp
	switch atyp {
	case ATYPIPv4:
		buf := make([]byte, net.IPv4len)
		if _, err := ctxio.ReadFull(ctx, c, buf); err != nil {
			return Address{}, errors.Join(ErrTruncated, err)
		}
		addr.IP = net.IP(buf)
	case ATYPIPv6:
		buf := make([]byte, net.IPv6len)
		if _, err := ctxio.ReadFull(ctx, c, buf); err != nil {
			return Address{}, errors.Join(ErrTruncated, err)
		}
		addr.IP = net.IP(buf)
	case ATYPDomain:
		var lenBuf [1]byte
		if _, err := ctxio.ReadFull(ctx, c, lenBuf[:]); err != nil {
			return Address{}, errors.Join(ErrTruncated, err)
		}
		if lenBuf[0] == 0 {
			return Address{}, ErrEmptyDomain
		}
		buf := make([]byte, lenBuf[0])
		if _, err := ctxio.ReadFull(ctx, c, buf); err != nil {
			return Address{}, errors.Join(ErrTruncated, err)
		}
		addr.Domain = string(buf)
	default:
		return Address{}, fmt.Errorf("%w: atyp=%d", ErrUnsupportedAddressType, atyp)
	}

	var portBuf [PortSize]byte
	if _, err := ctxio.ReadFull(ctx, c, portBuf[:]); err != nil {
		return Address{}, errors.Join(ErrTruncated, err)
	}
	addr.Port = uint16(portBuf[0])<<8 | uint16(portBuf[1])

	return addr, nil
}

// Equal reports whether two addresses describe the same endpoint.
func Equal(a, b Address) bool {
	if a.Type != b.Type || a.Port != b.Port {
		return false
	}
	if a.Type == ATYPDomain {
		return a.Domain == b.Domain
	}
	return a.IP.Equal(b.IP)
}
