package state

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/elee1766/btdu/pkg/classifier"
	"github.com/elee1766/btdu/pkg/wire"
)

// WorkerProc is one spawned sampler subprocess: its OS process handle,
// the read end of its stdout pipe (kept in non-blocking mode for the
// event loop's select-based drain), a streaming wire parser, and the
// classifier.Worker that turns its frames into tree updates.
type WorkerProc struct {
	cmd    *exec.Cmd
	stdout *os.File
	parser wire.Parser
	Classifier *classifier.Worker

	Paused bool
	Dead   bool
}

// SpawnWorker re-execs self (the current binary) with args (the caller
// puts --subprocess in them), wiring its stdout to a pipe this process
// reads from. The child's stderr is inherited so its slog output reaches the
// terminal/log file the parent was launched with.
func SpawnWorker(self string, args []string, shared *classifier.Shared) (*WorkerProc, error) {
	cmd := exec.Command(self, args...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("state: worker stdout pipe: %w", err)
	}
	pipeFile, ok := stdout.(*os.File)
	if !ok {
		return nil, fmt.Errorf("state: worker stdout is not a plain pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("state: spawn worker: %w", err)
	}
	if err := unix.SetNonblock(int(pipeFile.Fd()), true); err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("state: set worker pipe non-blocking: %w", err)
	}
	return &WorkerProc{
		cmd:        cmd,
		stdout:     pipeFile,
		Classifier: classifier.NewWorker(shared),
	}, nil
}

// FD returns the worker's stdout pipe file descriptor for use in a
// select() readiness set.
func (w *WorkerProc) FD() int { return int(w.stdout.Fd()) }

// Pause sends SIGSTOP, freezing the worker's sampling loop immediately;
// the event loop should also stop draining this worker's fd while
// paused.
func (w *WorkerProc) Pause() error {
	if w.Paused || w.Dead {
		return nil
	}
	w.Paused = true
	return w.cmd.Process.Signal(syscall.SIGSTOP)
}

// Resume sends SIGCONT, reversing Pause.
func (w *WorkerProc) Resume() error {
	if !w.Paused || w.Dead {
		return nil
	}
	w.Paused = false
	return w.cmd.Process.Signal(syscall.SIGCONT)
}

// Drain performs one non-blocking read from the worker's pipe, feeds it
// to the streaming parser, and dispatches every complete frame to the
// worker's classifier. Returns the number of frames processed. EOF
// marks the worker dead (its process exited or was killed).
func (w *WorkerProc) Drain() (int, error) {
	buf := make([]byte, 64*1024)
	n, err := w.stdout.Read(buf)
	if n > 0 {
		w.parser.Feed(buf[:n])
	}
	if err != nil {
		if isWouldBlock(err) {
			err = nil
		} else {
			w.Dead = true
		}
	}

	processed := 0
	for {
		d, needed, perr := w.parser.Next()
		if perr != nil {
			return processed, fmt.Errorf("state: worker protocol error: %w", perr)
		}
		if needed > 0 {
			break
		}
		if ferr, ok := d.Message.(*wire.FatalError); ok {
			if herr := w.Classifier.Handle(ferr); herr != nil {
				return processed, herr
			}
			w.Dead = true
			break
		}
		if herr := w.Classifier.Handle(d.Message); herr != nil {
			return processed, fmt.Errorf("state: classify frame: %w", herr)
		}
		processed++
	}
	return processed, err
}

// Kill terminates the worker and releases its resources.
func (w *WorkerProc) Kill() {
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	w.cmd.Wait()
	w.stdout.Close()
	w.Dead = true
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
