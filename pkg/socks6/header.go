package socks6

import "github.com/Iam54r1n4/socksix/pkg/socksaddr"

// Fixed request header, sent in one shot by the client:
//
//	+-----+-----+----------+---------+-------+----------+------------+
//	| VER | CMD | DST.ADDR | padding | flags | IDATALEN | OPTLEN     |
//	+-----+-----+----------+---------+-------+----------+------------+
//	|  1  |  1  | variable |    1    |   1   |    2     |     2      |
//	+-----+-----+----------+---------+-------+----------+------------+
//
// padding and flags are both reserved by this implementation (always
// zero on send, ignored on receive); initial data and options lengths
// are big-endian.
type fixedHeader struct {
	Version byte
	Cmd     byte
	socksaddr.Address
	initialDataLen uint16
	optionsLen     uint16
}

const fixedHeaderTailSize = 1 + 1 + 2 + 2 // padding + flags + IDATALEN + OPTLEN

// authReply is the first of the two server replies, sent once the
// request has been parsed and accepted: it stands in for SOCKS6's
// authentication negotiation, collapsed to a single no-auth method
// since that is all this implementation supports.
type authReply struct {
	Version byte
	Method  byte
}

func (r authReply) bytes() []byte { return []byte{r.Version, r.Method} }

// operationReply is the final reply reporting the outcome of the
// CONNECT attempt, wire-compatible in layout with the SOCKS5 reply:
// VER, REP, RSV, BND.ADDR.
type operationReply struct {
	Version byte
	Rep     byte
	socksaddr.Address
}

func (r operationReply) bytes() ([]byte, error) {
	b := []byte{r.Version, r.Rep, 0x00}
	return r.Address.Encode(b)
}
