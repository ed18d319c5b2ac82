package switcher

import "errors"

// ErrSwitchLocked is returned by LockFile when another process holds the
// switch lock.
var ErrSwitchLocked = errors.New("another switch is in progress")

// LockFile takes an exclusive, non-blocking lock on path, creating the file
// if needed. The lock is held until release is called or the process exits,
// so a crashed switch never leaves a stale lock behind.
func LockFile(path string) (release func(), err error) {
	return lockFile(path)
}
