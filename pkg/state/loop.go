package state

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// refreshInterval is the ~2 Hz redraw tick.
const refreshInterval = 500 * time.Millisecond

// KeyReader drains available terminal input into the TUI. The event
// loop only knows how to wait for stdin to become readable and to hand
// off a non-blocking read attempt; rendering and key interpretation
// live in the TUI layer this package does not import (no cycle from
// state -> ui).
type KeyReader interface {
	// ReadKeys performs one non-blocking read of available terminal
	// input and dispatches it. Returns true if anything was consumed.
	ReadKeys() (bool, error)
}

// Redrawer is invoked after any iteration that consumed worker frames,
// terminal input, or hit the refresh tick.
type Redrawer interface {
	Redraw(*Session)
}

// Loop drives the main process's single-threaded event loop: block in
// select() until stdin, a worker pipe, or the refresh tick is ready;
// drain whatever is ready; redraw; repeat until Session.ShouldStop().
// Headless callers (no TUI) pass a nil KeyReader/Redrawer.
func Loop(sess *Session, stdinFD int, keys KeyReader, redraw Redrawer) error {
	for !sess.ShouldStop() {
		activity, err := waitReady(sess, stdinFD, keys != nil)
		if err != nil {
			return err
		}

		didWork := false

		if keys != nil && activity.stdinReady {
			consumed, err := keys.ReadKeys()
			if err != nil {
				return err
			}
			didWork = didWork || consumed
		}

		for _, w := range sess.Workers {
			if w.Dead || w.Paused {
				continue
			}
			if !activity.workerReady[w] {
				continue
			}
			n, err := w.Drain()
			if err != nil {
				sess.FatalErr = err
				break
			}
			didWork = didWork || n > 0
		}

		if redraw != nil && (didWork || activity.tick) {
			redraw.Redraw(sess)
		}
	}
	return sess.FatalErr
}

type readiness struct {
	stdinReady  bool
	workerReady map[*WorkerProc]bool
	tick        bool
}

// waitReady blocks until any watched descriptor is readable or the
// refresh tick deadline passes. Descriptors themselves stay
// non-blocking; this is the only call that actually sleeps.
func waitReady(sess *Session, stdinFD int, watchStdin bool) (readiness, error) {
	var rfds unix.FdSet
	maxFD := 0

	if watchStdin {
		fdSet(&rfds, stdinFD)
		if stdinFD > maxFD {
			maxFD = stdinFD
		}
	}
	for _, w := range sess.Workers {
		if w.Dead || w.Paused {
			continue
		}
		fd := w.FD()
		fdSet(&rfds, fd)
		if fd > maxFD {
			maxFD = fd
		}
	}

	timeout := unix.NsecToTimeval(refreshInterval.Nanoseconds())
	n, err := unix.Select(maxFD+1, &rfds, nil, nil, &timeout)
	if err != nil {
		if err == unix.EINTR {
			return readiness{}, nil
		}
		return readiness{}, err
	}

	out := readiness{workerReady: make(map[*WorkerProc]bool, len(sess.Workers))}
	if n == 0 {
		out.tick = true
		return out, nil
	}
	if watchStdin && fdIsSet(&rfds, stdinFD) {
		out.stdinReady = true
	}
	for _, w := range sess.Workers {
		if w.Dead || w.Paused {
			continue
		}
		if fdIsSet(&rfds, w.FD()) {
			out.workerReady[w] = true
		}
	}
	return out, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// StdinFD is a small convenience for callers wiring Loop against the
// real terminal.
func StdinFD() int { return int(os.Stdin.Fd()) }
