package chain_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Iam54r1n4/socksix/pkg/chain"
	"github.com/Iam54r1n4/socksix/pkg/dispatch"
	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/reply"
	"github.com/Iam54r1n4/socksix/pkg/socks6"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

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

func tcpTarget(addr net.Addr) socksaddr.Address {
	a := addr.(*net.TCPAddr)
	return socksaddr.NewIP(a.IP, uint16(a.Port))
}

// TestDialSocks6HopSuccess drives chain.Dial against a single
// well-behaved SOCKS6 hop (spec S5 with a chain of length 1): the hop
// connects straight through to the real destination and the caller
// ends up with a working byte stream to it.
func TestDialSocks6HopSuccess(t *testing.T) {
	destAddr := startEcho(t)

	hop := dispatch.New(dispatch.Config{Host: "127.0.0.1", Port: 0})
	if err := hop.Listen(); err != nil {
		t.Fatalf("hop listen: %v", err)
	}
	go hop.Serve()
	defer hop.Close()

	hopAddr := proxyaddr.New(socks6.Version, tcpTarget(hop.Addr()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, rep, err := chain.Dial(ctx, hopAddr, nil, tcpTarget(destAddr), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if rep != reply.Success {
		t.Fatalf("expected success, got %s", rep)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q", buf)
	}
}

// mockRefusingHop accepts exactly one SOCKS6 request and refuses it
// with NetworkUnreachable, never dialing anywhere — exercising the
// hop-refused path chain.Dial must surface via reply.FromWireCode.
func mockRefusingHop(t *testing.T) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := socks6.NewServerConn(conn)
		if err := sc.Handshake(); err != nil {
			return
		}
		_ = sc.SendAuthReply(context.Background())
		_ = sc.SendOperationReply(context.Background(), reply.NetworkUnreachable.WireCode(), socksaddr.Address{})
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr()
}

func TestDialSocks6HopRefused(t *testing.T) {
	hopAddr := proxyaddr.New(socks6.Version, tcpTarget(mockRefusingHop(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, rep, err := chain.Dial(ctx, hopAddr, nil, socksaddr.NewIP(net.ParseIP("127.0.0.1"), 9), nil)
	if err == nil {
		t.Fatal("expected error on hop refusal")
	}
	if rep != reply.NetworkUnreachable {
		t.Fatalf("expected NetworkUnreachable forwarded from hop, got %s", rep)
	}
}

// TestDialSocks5BridgeToSocks6Hop exercises the SOCKS5-hop bridging
// path: the first hop is configured as a SOCKS5 hop and carries a
// residual chain of one SOCKS6 hop, so chain.Dial must tunnel a nested
// CONNECT through the SOCKS5 hop to reach the SOCKS6 hop, then drive
// the SOCKS6 handshake over that tunnel to reach the real destination.
func TestDialSocks5BridgeToSocks6Hop(t *testing.T) {
	destAddr := startEcho(t)

	innerHop := dispatch.New(dispatch.Config{Host: "127.0.0.1", Port: 0})
	if err := innerHop.Listen(); err != nil {
		t.Fatalf("inner hop listen: %v", err)
	}
	go innerHop.Serve()
	defer innerHop.Close()

	outerHop := dispatch.New(dispatch.Config{Host: "127.0.0.1", Port: 0})
	if err := outerHop.Listen(); err != nil {
		t.Fatalf("outer hop listen: %v", err)
	}
	go outerHop.Serve()
	defer outerHop.Close()

	firstHop := proxyaddr.New(5, tcpTarget(outerHop.Addr()))
	residual := []proxyaddr.ProxyAddress{proxyaddr.New(socks6.Version, tcpTarget(innerHop.Addr()))}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, rep, err := chain.Dial(ctx, firstHop, residual, tcpTarget(destAddr), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if rep != reply.Success {
		t.Fatalf("expected success, got %s", rep)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q", buf)
	}
}
