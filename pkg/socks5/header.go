package socks5

import "github.com/Iam54r1n4/socksix/pkg/socksaddr"

// greeting is the client's initial method-negotiation message.
type greeting struct {
	version  byte
	nMethods byte
	methods  []byte
}

// userPassAuth is the RFC 1929 username/password subnegotiation.
type userPassAuth struct {
	version  byte
	username []byte
	password []byte
}

// request is a parsed SOCKS5 request (or, client-side, the request
// about to be sent).
type request struct {
	Version byte
	Cmd     byte
	socksaddr.Address
}

// reply is a SOCKS5 reply (or, client-side, the reply just parsed).
type reply struct {
	Version byte
	Rep     byte
	socksaddr.Address
}

// bytes serializes the reply for transmission. RSV is always 0x00.
func (r reply) bytes() ([]byte, error) {
	b := []byte{r.Version, r.Rep, 0x00}
	return r.Address.Encode(b)
}
