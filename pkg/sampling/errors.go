package sampling

import "errors"

// ErrInvalidFilesystem is returned by OpenFilesystem when path is not a
// btrfs filesystem, or not its top-level subvolume.
var ErrInvalidFilesystem = errors.New("sampling: not a btrfs top-level subvolume")

// IoctlError wraps a failed ioctl call with the syscall errno it
// returned, so callers can render the errno name the way §7 requires
// for the per-sample \0ERROR trie branch.
type IoctlError struct {
	Op    string
	Errno error
}

func (e *IoctlError) Error() string {
	return "sampling: " + e.Op + ": " + e.Errno.Error()
}

func (e *IoctlError) Unwrap() error { return e.Errno }
