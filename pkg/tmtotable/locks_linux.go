//go:build linux

package tmtotable

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes an advisory whole-file lock, a second line of
// defense alongside the in-process mutex map for the case where two build
// processes are pointed at the same root_dir (sync.Mutex can't reach
// across processes). Returns a releaser to call when done.
func flockExclusive(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }, nil
}
