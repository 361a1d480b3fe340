package worker

import (
	"fmt"
	"io"

	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/wire"
)

// StartupOptions are the flags a worker subprocess is re-exec'd with:
// the filesystem path, whether to sample physical device space instead
// of logical chunk space, and its per-worker RNG seed.
type StartupOptions struct {
	FSPath   string
	Physical bool
	Seed     int64
}

// Bootstrap opens the filesystem and rebuilds the chunk index locally
// (cheap, and keeps seed-to-output determinism independent of the
// parent's own chunk enumeration), returning a ready-to-run Worker
// plus the Capability the caller must Close when the worker exits.
func Bootstrap(opts StartupOptions, out io.Writer) (*Worker, *sampling.Capability, error) {
	cap, err := sampling.OpenFilesystem(opts.FSPath)
	if err != nil {
		return nil, nil, err
	}

	fsInfo, err := cap.FilesystemInfo()
	if err != nil {
		cap.Close()
		return nil, nil, fmt.Errorf("worker: read filesystem info: %w", err)
	}

	var space sampling.SamplingSpace
	if opts.Physical {
		idx, err := cap.EnumerateDeviceExtents(fsInfo.DeviceSizeMap())
		if err != nil {
			cap.Close()
			return nil, nil, fmt.Errorf("worker: enumerate device extents: %w", err)
		}
		space = sampling.NewPhysicalSpace(idx)
	} else {
		idx, err := cap.EnumerateChunks(false)
		if err != nil {
			cap.Close()
			return nil, nil, fmt.Errorf("worker: enumerate chunks: %w", err)
		}
		space = sampling.NewLogicalSpace(idx)
	}
	if space.Total() <= 0 {
		cap.Close()
		return nil, nil, fmt.Errorf("worker: %s reports no sampling space", opts.FSPath)
	}

	devices := make([]wire.DeviceDesc, 0, len(fsInfo.Devices))
	for _, d := range fsInfo.Devices {
		devices = append(devices, wire.DeviceDesc{DevID: d.DevID, TotalBytes: uint64(d.TotalBytes), Path: d.Path})
	}

	sampler := sampling.NewSampler(space, opts.Seed)
	w := New(cap, sampler, out, Config{
		Seed:      opts.Seed,
		TotalSize: uint64(space.Total()),
		FSID:      fsInfo.UUID,
		Devices:   devices,
	})
	return w, cap, nil
}

// Run bootstraps and drives the worker loop until the context-free
// fatal condition: an I/O error writing to out (the parent has closed
// the pipe, e.g. because the process is quitting). It never returns a
// nil error on its own — the caller's stdout pipe closing is the only
// normal exit path for a worker subprocess, which otherwise loops
// forever.
func Run(opts StartupOptions, out io.Writer) error {
	w, cap, err := Bootstrap(opts, out)
	if err != nil {
		return err
	}
	defer cap.Close()

	if err := w.Start(); err != nil {
		return err
	}
	for {
		if err := w.RunOnce(); err != nil {
			_ = w.write(&wire.FatalError{Msg: err.Error()})
			return err
		}
	}
}
