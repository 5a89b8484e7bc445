package dispatch

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/socks6"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// startEcho runs a destination server that echoes every byte it
// receives back to the sender, standing in for the target end of a
// relayed connection.
func startEcho(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr()
}

// startHop runs a Dispatcher as a standalone SOCKS6 hop — the chain
// driver treats every hop as an ordinary downstream SOCKS6 proxy, so
// reusing the production Dispatcher itself is exactly the shape a real
// chain hop takes.
func startHop(t *testing.T, chain []proxyaddr.ProxyAddress) net.Addr {
	t.Helper()
	d := New(Config{Host: "127.0.0.1", Port: 0, Chain: chain})
	if err := d.Listen(); err != nil {
		t.Fatalf("hop listen: %v", err)
	}
	go d.Serve()
	t.Cleanup(func() { d.Close() })
	return d.Addr()
}

func proxyAddrFor(addr net.Addr) proxyaddr.ProxyAddress {
	tcpAddr := addr.(*net.TCPAddr)
	return proxyaddr.New(socks6.Version, socksaddr.NewIP(tcpAddr.IP, uint16(tcpAddr.Port)))
}

// TestChainOfTwoHops drives a configured chain of length 2 in front of
// a direct destination. The entry dispatcher sends
// hop1 a chain option carrying hop2; hop1 pops hop2 off as its next hop
// and sends hop2 a request with no chain option, so hop2 connects
// straight to the destination. A byte written by the client must arrive at the
// destination unchanged, and the echo must arrive back at the client.
func TestChainOfTwoHops(t *testing.T) {
	destAddr := startEcho(t)
	hop2Addr := startHop(t, nil)
	hop1Addr := startHop(t, nil)

	front := New(Config{
		Host: "127.0.0.1",
		Port: 0,
		Chain: []proxyaddr.ProxyAddress{
			proxyAddrFor(hop1Addr),
			proxyAddrFor(hop2Addr),
		},
	})
	if err := front.Listen(); err != nil {
		t.Fatalf("front listen: %v", err)
	}
	go front.Serve()
	defer front.Close()

	conn, err := net.DialTimeout("tcp", front.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial front: %v", err)
	}
	defer conn.Close()

	destTCP := destAddr.(*net.TCPAddr)
	dest := socksaddr.NewIP(destTCP.IP, uint16(destTCP.Port))
	cc := socks6.NewClientConn(conn, dest, nil, nil)
	if err := cc.Handshake(); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	rep, _, err := cc.Reply()
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if rep != 0x00 {
		t.Fatalf("expected success reply, got %#x", rep)
	}

	if _, err := cc.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(cc, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want %q", buf, "ping")
	}
}

// TestSocks6InitialData checks that initial data included in the
// SOCKS6 request appears as the leading bytes written to the outbound
// stream, before the relay proper begins.
func TestSocks6InitialData(t *testing.T) {
	destAddr := startEcho(t)

	front := New(Config{Host: "127.0.0.1", Port: 0})
	if err := front.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go front.Serve()
	defer front.Close()

	conn, err := net.DialTimeout("tcp", front.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	destTCP := destAddr.(*net.TCPAddr)
	dest := socksaddr.NewIP(destTCP.IP, uint16(destTCP.Port))
	cc := socks6.NewClientConn(conn, dest, nil, []byte("HELLO"))
	if err := cc.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	rep, _, err := cc.Reply()
	if err != nil || rep != 0x00 {
		t.Fatalf("reply: rep=%#x err=%v", rep, err)
	}

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(cc, buf); err != nil {
		t.Fatalf("read initial data echo: %v", err)
	}
	if string(buf) != "HELLO" {
		t.Fatalf("got %q, want %q", buf, "HELLO")
	}
}

// TestSocks5DirectConnect drives a raw SOCKS5 CONNECT with no chain
// configured and checks the client reaches the destination directly.
func TestSocks5DirectConnect(t *testing.T) {
	destAddr := startEcho(t)

	front := New(Config{Host: "127.0.0.1", Port: 0})
	if err := front.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go front.Serve()
	defer front.Close()

	conn, err := net.DialTimeout("tcp", front.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetingReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, greetingReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if greetingReply[0] != 0x05 || greetingReply[1] != 0x00 {
		t.Fatalf("unexpected greeting reply: %v", greetingReply)
	}

	destTCP := destAddr.(*net.TCPAddr)
	req := []byte{0x05, 0x01, 0x00, 0x01}
	req = append(req, destTCP.IP.To4()...)
	portBytes := []byte{byte(destTCP.Port >> 8), byte(destTCP.Port)}
	req = append(req, portBytes...)
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply := make([]byte, 10)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply[0] != 0x05 || reply[1] != 0x00 {
		t.Fatalf("unexpected reply: %v", reply)
	}
}

// TestSocks5CommandNotSupported checks that a BIND request gets a
// command-not-supported reply instead of being served.
func TestSocks5CommandNotSupported(t *testing.T) {
	front := New(Config{Host: "127.0.0.1", Port: 0})
	if err := front.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go front.Serve()
	defer front.Close()

	conn, err := net.DialTimeout("tcp", front.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetingReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, greetingReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}

	// BIND, not CONNECT.
	req := []byte{0x05, 0x02, 0x00, 0x01, 0x7F, 0x00, 0x00, 0x01, 0x00, 0x50}
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply := make([]byte, 10)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply[1] != 0x07 {
		t.Fatalf("expected command-not-supported reply, got %v", reply)
	}
}
