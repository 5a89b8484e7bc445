package socksopt

import (
	"errors"
	"fmt"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// KindChain is this proxy's private-use SOCKS6 option kind for the
// residual-chain option. The draft leaves chain/stack encodings
// implementation-defined; this is the one stable encoding this repo
// picks and versions.
const KindChain uint16 = 0xC001

var (
	ErrChainTruncated    = errors.New("socksopt: truncated chain option payload")
	ErrChainBadVersion   = errors.New("socksopt: chain entry carries unsupported protocol version")
	ErrChainCountMismatch = errors.New("socksopt: chain option count does not match entries present")
)

// EncodeChain serializes a residual chain as the chain option payload:
// an 8-bit count followed by (version, address-type-tagged address,
// port) triples, reusing socksaddr's own encoding for the address part.
// An empty chain still produces a valid, zero-count option; callers
// that want to omit the option entirely for an empty chain should
// check len(hops) == 0 themselves before calling this.
func EncodeChain(hops []proxyaddr.ProxyAddress) (Option, error) {
	if len(hops) > 0xFF {
		return Option{}, fmt.Errorf("%w: %d hops exceeds 8-bit count", ErrChainCountMismatch, len(hops))
	}
	payload := []byte{byte(len(hops))}
	for _, hop := range hops {
		payload = append(payload, hop.Version)
		encoded, err := hop.Target.Encode(nil)
		if err != nil {
			return Option{}, err
		}
		payload = append(payload, encoded...)
	}
	return Option{Kind: KindChain, Data: payload}, nil
}

// DecodeChain parses a chain option payload back into a hop list.
func DecodeChain(data []byte) ([]proxyaddr.ProxyAddress, error) {
	if len(data) < 1 {
		return nil, ErrChainTruncated
	}
	count := int(data[0])
	data = data[1:]

	hops := make([]proxyaddr.ProxyAddress, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < 1 {
			return nil, ErrChainTruncated
		}
		version := data[0]
		if version != 5 && version != 6 {
			return nil, fmt.Errorf("%w: %d", ErrChainBadVersion, version)
		}
		data = data[1:]

		addr, rest, err := socksaddr.Decode(data)
		if err != nil {
			return nil, errors.Join(ErrChainTruncated, err)
		}
		data = rest

		hops = append(hops, proxyaddr.New(version, addr))
	}
	if len(data) != 0 {
		return nil, ErrChainCountMismatch
	}
	return hops, nil
}

// PopChain splits opts into (effective next hop, remaining options with
// the chain option rewritten to the residual list or removed). next is
// the zero value with ok=false when there is no chain option or it is
// empty.
func PopChain(opts []Option) (next proxyaddr.ProxyAddress, residual []proxyaddr.ProxyAddress, rewritten []Option, ok bool, err error) {
	chainOpt, found := Find(opts, KindChain)
	if !found {
		return proxyaddr.ProxyAddress{}, nil, opts, false, nil
	}
	hops, err := DecodeChain(chainOpt.Data)
	if err != nil {
		return proxyaddr.ProxyAddress{}, nil, nil, false, err
	}
	if len(hops) == 0 {
		return proxyaddr.ProxyAddress{}, nil, Without(opts, KindChain), false, nil
	}

	next = hops[0]
	residual = hops[1:]

	rewritten = Without(opts, KindChain)
	if len(residual) > 0 {
		residualOpt, err := EncodeChain(residual)
		if err != nil {
			return proxyaddr.ProxyAddress{}, nil, nil, false, err
		}
		rewritten = append(rewritten, residualOpt)
	}
	return next, residual, rewritten, true, nil
}
