package classifier

import "golang.org/x/sys/unix"

// errnoName renders a raw errno as its symbolic name (e.g. "ENOENT") for
// the values listed in errnoNames, falling back to unix.Errno's message
// text for anything else.
func errnoName(errno int32) string {
	e := unix.Errno(errno)
	if s := e.Error(); s != "" && e != unix.Errno(0) {
		if name, ok := errnoNames[e]; ok {
			return name
		}
	}
	return e.Error()
}

var errnoNames = map[unix.Errno]string{
	unix.ENOENT:  "ENOENT",
	unix.EACCES:  "EACCES",
	unix.EPERM:   "EPERM",
	unix.EIO:     "EIO",
	unix.ENOTDIR: "ENOTDIR",
	unix.ELOOP:   "ELOOP",
	unix.ESTALE:  "ESTALE",
	unix.ENOMEM:  "ENOMEM",
	unix.EINVAL:  "EINVAL",
}
