package main

import (
	"github.com/gofrs/flock"
)

// lockHeld reports whether another process holds the daemon lock at path.
func lockHeld(path string) bool {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
