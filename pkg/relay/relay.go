// Package relay implements the bidirectional copy loop: once a
// handshake succeeds, the proxy stops interpreting bytes and simply
// ties the client and outbound streams together until both halves
// close. A WaitGroup plus a buffered error channel around
// io.CopyBuffer also propagates half-close and tracks byte counts per
// direction.
package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// ErrRelayFailed wraps a fatal error observed on either direction.
var ErrRelayFailed = errors.New("relay: data transfer failed")

// bufferSize is the size of the single in-flight buffer per direction.
const bufferSize = 16 * 1024

// halfCloser is satisfied by *net.TCPConn and any other duplex stream
// that can shut down its write side without tearing down the read
// side. Streams that don't implement it (e.g. net.Pipe's Conn) fall
// back to a full Close.
type halfCloser interface {
	CloseWrite() error
}

// Stats reports the byte count copied in each direction once a Relay
// call returns, for the caller's own diagnostics.
type Stats struct {
	ClientToUpstream int64
	UpstreamToClient int64
}

// Relay copies bytes bidirectionally between client and upstream until
// both directions have seen EOF, propagating half-close as each
// direction finishes so the still-open side keeps draining. Both
// directions run concurrently and share no mutable state beyond the
// atomically updated counters in the returned Stats. A fatal error on
// either direction aborts the session; the other direction's error, if
// any, is discarded in favor of the first one observed.
func Relay(client, upstream net.Conn) (Stats, error) {
	var stats Stats
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go copyHalf(&wg, errCh, &stats.ClientToUpstream, upstream, client)
	go copyHalf(&wg, errCh, &stats.UpstreamToClient, client, upstream)

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// copyHalf copies from src to dst, tracking the byte count in counter
// and propagating a half-close on dst once src reaches EOF so the
// opposite direction can keep flowing until it, too, sees EOF.
func copyHalf(wg *sync.WaitGroup, errCh chan<- error, counter *int64, dst, src net.Conn) {
	defer wg.Done()

	buf := make([]byte, bufferSize)
	n, err := io.CopyBuffer(dst, src, buf)
	atomic.AddInt64(counter, n)

	if hc, ok := dst.(halfCloser); ok {
		_ = hc.CloseWrite()
	} else {
		_ = dst.Close()
	}

	if err != nil && !errors.Is(err, io.EOF) {
		// Abort the session: closing both ends unblocks the opposite
		// direction's copy.
		_ = dst.Close()
		_ = src.Close()
		errCh <- errors.Join(ErrRelayFailed, err)
		return
	}
	errCh <- nil
}
