// Package dispatch implements the proxy's listener: one TCP port, an
// accept loop, and per-connection protocol selection by peeking the
// inbound stream's first byte. A single dispatcher multiplexes both
// SOCKS5 and SOCKS6 on one externally-facing port, serving whichever
// protocol a given client speaks rather than binding a separate port
// per protocol.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Iam54r1n4/socksix/internal/logger"
	"github.com/Iam54r1n4/socksix/pkg/chain"
	"github.com/Iam54r1n4/socksix/pkg/proxyaddr"
	"github.com/Iam54r1n4/socksix/pkg/relay"
	"github.com/Iam54r1n4/socksix/pkg/reply"
	"github.com/Iam54r1n4/socksix/pkg/socks5"
	"github.com/Iam54r1n4/socksix/pkg/socks6"
	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
	"github.com/Iam54r1n4/socksix/pkg/sockopts"
)

// defaultHandshakeTimeout and defaultDialTimeout are used when Config
// leaves the corresponding field at zero.
const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultDialTimeout      = 10 * time.Second
)

// Config is the process-wide, read-only listening configuration shared
// by every accepted connection.
type Config struct {
	Host             string
	Port             int
	Chain            []proxyaddr.ProxyAddress
	Creds            socks5.Credentials // optional SOCKS5 username/password accounts
	HandshakeTimeout time.Duration      // zero means defaultHandshakeTimeout
	DialTimeout      time.Duration      // zero means defaultDialTimeout
}

// Dispatcher binds one TCP port and serves both SOCKS5 and SOCKS6
// clients on it.
type Dispatcher struct {
	cfg Config
	ln  net.Listener
}

// New builds a Dispatcher for cfg. Listen must be called before Serve.
// Zero-valued timeout fields in cfg fall back to the package defaults.
func New(cfg Config) *Dispatcher {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Dispatcher{cfg: cfg}
}

// Listen binds the configured host:port. A failure here is fatal to
// the caller.
func (d *Dispatcher) Listen() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(d.cfg.Host, fmt.Sprint(d.cfg.Port)))
	if err != nil {
		return err
	}
	d.ln = ln
	logger.Info("listening on: ", ln.Addr())
	return nil
}

// Addr returns the bound listener address; valid only after Listen.
func (d *Dispatcher) Addr() net.Addr {
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Serve accepts connections until the listener closes, handing each
// off to its own goroutine. Transient accept errors are logged and the
// loop continues.
func (d *Dispatcher) Serve() error {
	if d.ln == nil {
		return ErrNotListening
	}
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn(errors.Join(ErrAccept, err))
			continue
		}
		logger.Debug("accepted connection from: ", conn.RemoteAddr())
		go d.handle(conn)
	}
}

// Close stops accepting new connections; in-flight sessions are left
// to finish on their own.
func (d *Dispatcher) Close() error {
	if d.ln == nil {
		return nil
	}
	return d.ln.Close()
}

// peekedConn lets the dispatcher sniff the first byte through a
// bufio.Reader while still handing the handshake engines a plain
// net.Conn; the peeked byte is read back out of the buffer on the
// engine's very first Read, so nothing is lost.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (p *peekedConn) Read(b []byte) (int, error) { return p.r.Read(b) }

// rawTCPConn unwraps a peekedConn to the underlying *net.TCPConn the
// kernel handed Accept, if any — needed to reach its file descriptor
// for SO_ORIGINAL_DST.
func rawTCPConn(c net.Conn) (*net.TCPConn, bool) {
	if pc, ok := c.(*peekedConn); ok {
		c = pc.Conn
	}
	tc, ok := c.(*net.TCPConn)
	return tc, ok
}

// pointsAtSelf reports whether dest is this dispatcher's own listening
// address — the signature of a connection that reached here via an
// iptables REDIRECT/TPROXY rule ahead of the SOCKS handshake rather
// than a client that actually requested this proxy as its destination.
func (d *Dispatcher) pointsAtSelf(dest socksaddr.Address) bool {
	tcpAddr, ok := d.Addr().(*net.TCPAddr)
	if !ok || dest.IP == nil {
		return false
	}
	return dest.Port == uint16(tcpAddr.Port) && dest.IP.Equal(tcpAddr.IP)
}

// resolveTransparentRedirect recovers the true destination of a
// transparently redirected connection via SO_ORIGINAL_DST when the
// handshake's own destination just points back at this listener; on
// any other destination, or off Linux, or for a non-TCP conn, dest is
// returned unchanged — this path is best-effort, never the default
// CONNECT flow.
func (d *Dispatcher) resolveTransparentRedirect(conn net.Conn, dest socksaddr.Address) socksaddr.Address {
	if !d.pointsAtSelf(dest) {
		return dest
	}
	tc, ok := rawTCPConn(conn)
	if !ok {
		return dest
	}
	real, err := sockopts.OriginalDst(tc)
	if err != nil {
		logger.Debug("original destination unavailable: ", err)
		return dest
	}
	return real
}

func (d *Dispatcher) handle(conn net.Conn) {
	defer conn.Close()

	if err := sockopts.SetKeepAlive(conn, 0); err != nil {
		logger.Debug("keepalive not set: ", err)
	}

	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		logger.Debug(errors.Join(ErrPeekFailed, err))
		return
	}
	peeked := &peekedConn{Conn: conn, r: br}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HandshakeTimeout)
	defer cancel()

	switch first[0] {
	case socks5.Version:
		d.handleSocks5(ctx, peeked)
	case socks6.Version:
		d.handleSocks6(ctx, peeked)
	default:
		logger.Debug(fmt.Errorf("%w: first byte %#x", ErrUnknownProtocol, first[0]))
	}
}

func (d *Dispatcher) handleSocks5(ctx context.Context, conn net.Conn) {
	sc := socks5.NewServerConn(conn, d.cfg.Creds)
	if err := sc.HandshakeContext(ctx); err != nil {
		if errors.Is(err, socks5.ErrCommandNotSupported) {
			_ = sc.SendReply(ctx, reply.CommandNotSupported.WireCode(), socksaddr.Address{})
		}
		logger.Debug(errors.Join(ErrHandshakeFailed, err))
		return
	}

	dest, err := sc.Destination()
	if err != nil {
		logger.Debug(errors.Join(ErrHandshakeFailed, err))
		return
	}
	dest = d.resolveTransparentRedirect(conn, dest)

	out, rep, err := d.dialOutbound(ctx, dest, nil, nil)
	if err != nil {
		logger.Warn(errors.Join(ErrDialFailed, err))
	}
	defer closeIfNotNil(out)

	if err := sc.SendReply(ctx, rep.WireCode(), boundAddr(out)); err != nil {
		logger.Debug(errors.Join(ErrReplyFailed, err))
		return
	}
	if rep != reply.Success {
		return
	}
	d.relay(conn, out)
}

func (d *Dispatcher) handleSocks6(ctx context.Context, conn net.Conn) {
	sc := socks6.NewServerConn(conn)
	if err := sc.HandshakeContext(ctx); err != nil {
		switch {
		case errors.Is(err, socks6.ErrNotSocks6):
			// No safe reply in an unknown protocol.
		case errors.Is(err, socks6.ErrCommandNotSupported):
			_ = sc.SendAuthReply(ctx)
			_ = sc.SendOperationReply(ctx, reply.CommandNotSupported.WireCode(), socksaddr.Address{})
		}
		logger.Debug(errors.Join(ErrHandshakeFailed, err))
		return
	}

	dest, err := sc.Destination()
	if err != nil {
		logger.Debug(errors.Join(ErrHandshakeFailed, err))
		return
	}
	dest = d.resolveTransparentRedirect(conn, dest)

	var requestChain []proxyaddr.ProxyAddress
	if next, residual, ok := sc.Chain(); ok {
		requestChain = append([]proxyaddr.ProxyAddress{next}, residual...)
	}

	out, rep, err := d.dialOutbound(ctx, dest, requestChain, sc.InitialData())
	if err != nil {
		logger.Warn(errors.Join(ErrDialFailed, err))
	}
	defer closeIfNotNil(out)

	if err := sc.SendAuthReply(ctx); err != nil {
		logger.Debug(errors.Join(ErrReplyFailed, err))
		return
	}
	if err := sc.SendOperationReply(ctx, rep.WireCode(), boundAddr(out)); err != nil {
		logger.Debug(errors.Join(ErrReplyFailed, err))
		return
	}
	if rep != reply.Success {
		return
	}
	d.relay(conn, out)
}

// dialOutbound resolves the effective hop list — the request's own
// chain option entries first, then the listener's configured chain —
// and either dials dest directly (no hops) or hands off to the chain
// driver.
func (d *Dispatcher) dialOutbound(ctx context.Context, dest socksaddr.Address, requestChain []proxyaddr.ProxyAddress, initialData []byte) (net.Conn, reply.Kind, error) {
	hops := make([]proxyaddr.ProxyAddress, 0, len(requestChain)+len(d.cfg.Chain))
	hops = append(hops, requestChain...)
	hops = append(hops, d.cfg.Chain...)

	if len(hops) == 0 {
		dialer := net.Dialer{Timeout: d.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", dest.String())
		if err != nil {
			return nil, reply.FromDialError(err), err
		}
		if len(initialData) > 0 {
			if _, err := conn.Write(initialData); err != nil {
				conn.Close()
				return nil, reply.GeneralFailure, err
			}
		}
		return conn, reply.Success, nil
	}

	next, residual := hops[0], hops[1:]
	return chain.Dial(ctx, next, residual, dest, initialData)
}

func (d *Dispatcher) relay(client, upstream net.Conn) {
	stats, err := relay.Relay(client, upstream)
	if err != nil {
		logger.Warn(errors.Join(ErrRelayFailed, err))
		return
	}
	logger.DebugFields("relay closed",
		logger.F("client_to_upstream", stats.ClientToUpstream),
		logger.F("upstream_to_client", stats.UpstreamToClient),
	)
}

func boundAddr(c net.Conn) socksaddr.Address {
	if c == nil {
		return socksaddr.Address{}
	}
	tcpAddr, ok := c.LocalAddr().(*net.TCPAddr)
	if !ok {
		return socksaddr.Address{}
	}
	return socksaddr.NewIP(tcpAddr.IP, uint16(tcpAddr.Port))
}

func closeIfNotNil(c net.Conn) {
	if c != nil {
		c.Close()
	}
}
