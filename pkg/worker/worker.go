// Package worker implements the sampler subprocess's main loop: one
// process per CPU, re-exec'd with --subprocess, writing a pure framed
// binary stream to stdout. It reads nothing from the parent; pausing
// is driven externally via SIGSTOP/SIGCONT.
package worker

import (
	"fmt"
	"io"
	"time"

	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/wire"
)

// lookupCapability is the subset of *sampling.Capability the sampling
// loop drives, narrowed to an interface so the loop can be exercised
// against a fake in tests without a real btrfs filesystem.
type lookupCapability interface {
	LogicalIno(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error)
	InoPaths(treeID, objectID uint64) ([]string, error)
	RootInfo(rootID uint64) (*sampling.RootInfo, error)
}

// TopLevelRootID is the btrfs top-level subvolume's tree id, the
// implicit root every NewRoot chain eventually walks back to.
const TopLevelRootID = 5

// Config configures one worker subprocess run.
type Config struct {
	Seed      int64
	TotalSize uint64
	FSID      [16]byte
	Devices   []wire.DeviceDesc
}

// Worker draws samples from a SamplingSpace, resolves them to paths via
// a btrfs ioctl capability, and writes the resulting wire frames to Out.
type Worker struct {
	cap     lookupCapability
	sampler *sampling.Sampler
	out     io.Writer
	cfg     Config

	knownRoots map[uint64]bool
	sampleIdx  uint64

	now func() time.Time
}

// New creates a Worker. cap performs the per-sample ioctl resolution,
// sampler draws offsets from the worker's chunk index, out is the
// worker's stdout.
func New(cap lookupCapability, sampler *sampling.Sampler, out io.Writer, cfg Config) *Worker {
	return &Worker{
		cap:        cap,
		sampler:    sampler,
		out:        out,
		cfg:        cfg,
		knownRoots: map[uint64]bool{TopLevelRootID: true},
		now:        time.Now,
	}
}

func (w *Worker) write(msg any) error {
	_, err := w.out.Write(wire.Encode(msg))
	return err
}

// Start emits the worker's opening Start frame. Must be called exactly
// once before the first RunOnce.
func (w *Worker) Start() error {
	return w.write(&wire.Start{
		TotalSize: w.cfg.TotalSize,
		FSID:      w.cfg.FSID,
		Devices:   w.cfg.Devices,
	})
}

// RunOnce draws and fully resolves exactly one sample, emitting all of
// its frames from ResultStart through ResultEnd. It returns the first
// write error encountered, if any; ioctl failures are reported as
// ResultError/ResultInodeError frames, not Go errors — a failed lookup
// is still a sample.
func (w *Worker) RunOnce() error {
	started := w.now()
	zone, offset := w.sampler.Draw()
	w.sampleIdx++

	if err := w.write(&wire.ResultStart{
		ChunkFlags:  zone.Flags,
		Logical:     int64(offset.Logical),
		DevID:       uint64(offset.DevID),
		Physical:    int64(offset.Physical),
		SampleIndex: w.sampleIdx,
	}); err != nil {
		return err
	}

	if zone.IsDataBlockGroup() && offset.Logical >= 0 {
		if err := w.resolveInodes(uint64(offset.Logical)); err != nil {
			return err
		}
	}

	return w.write(&wire.ResultEnd{DurationHnsecs: uint64(w.now().Sub(started) / 100)})
}

func (w *Worker) resolveInodes(logical uint64) error {
	refs, err := w.cap.LogicalIno(logical, false)
	if err != nil {
		return w.write(&wire.ResultError{Msg: err.Error()})
	}

	if len(refs) == 0 {
		if err := w.write(&wire.ResultIgnoringOffset{}); err != nil {
			return err
		}
		refs, err = w.cap.LogicalIno(logical, true)
		if err != nil {
			return w.write(&wire.ResultError{Msg: err.Error()})
		}
	}

	for _, ref := range refs {
		if err := w.ensureRootKnown(ref.RootID); err != nil {
			return err
		}
		if err := w.emitInode(ref); err != nil {
			return err
		}
	}
	return nil
}

// ensureRootKnown walks ref's root's ancestor chain, emitting NewRoot
// frames parents-first for any root not yet announced.
func (w *Worker) ensureRootKnown(rootID uint64) error {
	if w.knownRoots[rootID] {
		return nil
	}
	info, err := w.cap.RootInfo(rootID)
	if err != nil {
		return fmt.Errorf("worker: resolve root %d: %w", rootID, err)
	}
	if info.ParentRootID != 0 {
		if err := w.ensureRootKnown(info.ParentRootID); err != nil {
			return err
		}
	}
	if err := w.write(&wire.NewRoot{
		RootID:       info.RootID,
		ParentRootID: info.ParentRootID,
		Name:         info.Name,
		Generation:   info.Generation,
		OTimeUnix:    timeToUnix(info.OTime),
		Readonly:     info.Readonly,
	}); err != nil {
		return err
	}
	w.knownRoots[rootID] = true
	return nil
}

func (w *Worker) emitInode(ref sampling.InodeRef) error {
	if err := w.write(&wire.ResultInodeStart{RootID: ref.RootID}); err != nil {
		return err
	}
	paths, err := w.cap.InoPaths(ref.RootID, ref.Inum)
	if err != nil {
		if werr := w.write(&wire.ResultInodeError{Errno: errnoOf(err), Msg: err.Error()}); werr != nil {
			return werr
		}
		return w.write(&wire.ResultInodeEnd{})
	}
	for _, p := range paths {
		if err := w.write(&wire.Result{Path: p}); err != nil {
			return err
		}
	}
	return w.write(&wire.ResultInodeEnd{})
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
