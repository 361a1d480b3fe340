package worker

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errnoOf extracts the raw errno value carried by err, if any, for the
// ResultInodeError frame's Errno field. Falls back to 0 (unknown) when
// err doesn't wrap a syscall errno.
func errnoOf(err error) int32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return 0
}
