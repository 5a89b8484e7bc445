//go:build !linux

package sockopts

import (
	"errors"
	"net"

	"github.com/Iam54r1n4/socksix/pkg/socksaddr"
)

// ErrUnsupportedPlatform is returned by OriginalDst on any platform
// other than Linux, where SO_ORIGINAL_DST has no meaning.
var ErrUnsupportedPlatform = errors.New("sockopts: SO_ORIGINAL_DST is only supported on linux")

// OriginalDst always fails outside Linux; callers are expected to treat
// it as an optional, best-effort path.
func OriginalDst(conn *net.TCPConn) (socksaddr.Address, error) {
	return socksaddr.Address{}, ErrUnsupportedPlatform
}
