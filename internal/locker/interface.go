package locker

import (
	"context"
	"time"
)

// ILocker hands out short exclusive leases on string keys.
type ILocker interface {
	// TryLock returns ErrLocked when another holder has the key. The
	// returned release is safe to call more than once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
