package storage

import (
	"os"
	"syscall"
)

// lockExclusive takes an exclusive advisory lock on f, blocking until
// available. Grounded on the inbox store's use of syscall.Flock for
// concurrent-safe append.
func lockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

// lockShared takes a shared advisory lock on f, blocking until available.
func lockShared(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_SH)
}

// unlock releases an advisory lock taken by lockExclusive/lockShared.
func unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
