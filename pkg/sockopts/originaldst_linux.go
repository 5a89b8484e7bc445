//go:build linux

package sockopts

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// soOriginalDst is SO_ORIGINAL_DST from linux/netfilter_ipv4.h. It has
// no binding in golang.org/x/sys/unix, so it is named locally the way
// every transparent-proxy implementation in the Go ecosystem does.
const soOriginalDst = 80

// OriginalDst recovers the true destination of a connection that
// arrived via an iptables REDIRECT/TPROXY rule, reading SO_ORIGINAL_DST
// off the accepted socket's file descriptor. The dispatcher only
// consults this when a handshake's destination IP and port equal the
// proxy's own listening address; it is never part of the default
// CONNECT flow.
func OriginalDst(conn *net.TCPConn) (socksaddr.Address, error) {
	f, err := conn.File()
	if err != nil {
		return socksaddr.Address{}, fmt.Errorf("sockopts: dup socket fd: %w", err)
	}
	defer f.Close()

	// The kernel packs a sockaddr_in (IPv4) into the same layout as an
	// ipv6_mreq, so GetsockoptIPv6Mreq is the conventional way to fetch
	// it without a CGo sockaddr_in definition: family(2) + port(2) +
	// addr(4), big-endian, at the front of Multiaddr.
	mreq, err := unix.GetsockoptIPv6Mreq(int(f.Fd()), unix.IPPROTO_IP, soOriginalDst)
	if err != nil {
		return socksaddr.Address{}, fmt.Errorf("sockopts: getsockopt SO_ORIGINAL_DST: %w", err)
	}

	raw := mreq.Multiaddr
	port := uint16(raw[2])<<8 | uint16(raw[3])
	ip := net.IPv4(raw[4], raw[5], raw[6], raw[7])
	return socksaddr.NewIP(ip, port), nil
}
