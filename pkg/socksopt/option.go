// Package socksopt implements the SOCKS6 options vector: a 16-bit
// length-prefixed sequence of (kind, length, payload) records carried
// in the SOCKS6 request and reply headers.
package socksopt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// optHeaderSize is the fixed 4-byte (kind uint16, length uint16) header
// that precedes every option's payload.
const optHeaderSize = 4

var (
	ErrTruncated       = errors.New("socksopt: truncated options vector")
	ErrLengthMismatch  = errors.New("socksopt: declared option length does not match payload")
	ErrVectorTooLarge  = errors.New("socksopt: options vector exceeds 16-bit length")
	ErrOptionTooLarge  = errors.New("socksopt: option length exceeds 16-bit field")
	ErrInvalidOptLen   = errors.New("socksopt: option length shorter than header")
)

// Option is one entry in the vector: an opaque (kind, payload) pair.
// Unknown kinds are preserved verbatim so that a hop which does not
// recognize an option can still forward it unchanged to the next hop.
type Option struct {
	Kind byte16
	Data []byte
}

// byte16 is a plain alias kept local to this file for readability; the
// wire field is a 16-bit option kind.
type byte16 = uint16

// Size returns this option's encoded size including its 4-byte header.
func (o Option) Size() int {
	return optHeaderSize + len(o.Data)
}

// EncodeVector serializes opts into a 16-bit-length-prefixed options
// vector. It does not itself enforce 4-byte alignment: SOCKS6 options
// as drafted are not required to pad, and this encoder round-trips
// byte-exact with DecodeVector either way.
func EncodeVector(opts []Option) ([]byte, error) {
	var body []byte
	for _, o := range opts {
		if o.Size() > 0xFFFF {
			return nil, ErrOptionTooLarge
		}
		var hdr [optHeaderSize]byte
		binary.BigEndian.PutUint16(hdr[0:2], o.Kind)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(o.Size()))
		body = append(body, hdr[:]...)
		body = append(body, o.Data...)
	}
	if len(body) > 0xFFFF {
		return nil, ErrVectorTooLarge
	}
	out := make([]byte, 2, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	out = append(out, body...)
	return out, nil
}

// DecodeVector parses a 16-bit-length-prefixed options vector from the
// head of b and returns the decoded options plus the remaining,
// unconsumed bytes (the initial-data section in a SOCKS6 request
// immediately follows the vector).
func DecodeVector(b []byte) ([]Option, []byte, error) {
	if len(b) < 2 {
		return nil, nil, ErrTruncated
	}
	vecLen := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < vecLen {
		return nil, nil, ErrTruncated
	}
	vec, rest := b[:vecLen], b[vecLen:]

	var opts []Option
	for len(vec) > 0 {
		if len(vec) < optHeaderSize {
			return nil, nil, ErrTruncated
		}
		kind := binary.BigEndian.Uint16(vec[0:2])
		totalLen := int(binary.BigEndian.Uint16(vec[2:4]))
		if totalLen < optHeaderSize {
			return nil, nil, fmt.Errorf("%w: kind=%d length=%d", ErrInvalidOptLen, kind, totalLen)
		}
		if len(vec) < totalLen {
			return nil, nil, ErrLengthMismatch
		}
		data := append([]byte{}, vec[optHeaderSize:totalLen]...)
		opts = append(opts, Option{Kind: kind, Data: data})
		vec = vec[totalLen:]
	}
	return opts, rest, nil
}

// Find returns the first option with the given kind, if present.
func Find(opts []Option, kind uint16) (Option, bool) {
	for _, o := range opts {
		if o.Kind == kind {
			return o, true
		}
	}
	return Option{}, false
}

// Without returns opts with every option of the given kind removed,
// used when a hop strips the chain option before forwarding the rest.
func Without(opts []Option, kind uint16) []Option {
	out := make([]Option, 0, len(opts))
	for _, o := range opts {
		if o.Kind != kind {
			out = append(out, o)
		}
	}
	return out
}
