// Package sockopts provides platform socket helpers the core relies on
// outside the handshake/relay hot path: TCP keepalive tuning (the
// dispatcher applies it to each accepted client connection), and, on
// Linux, recovering a transparently redirected connection's true
// destination.
package sockopts

import (
	"errors"
	"net"
	"time"
)

// ErrNotTCP is returned when a non-TCP net.Conn is passed to an
// operation that requires one.
var ErrNotTCP = errors.New("sockopts: connection is not a *net.TCPConn")

// SetKeepAlive enables TCP keepalive on c with the given probe period.
// A zero period leaves the OS default probe interval in place.
func SetKeepAlive(c net.Conn, period time.Duration) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return ErrNotTCP
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	if period <= 0 {
		return nil
	}
	return tc.SetKeepAlivePeriod(period)
}
