// Package state owns the main process's single aggregation struct
// (Session), the worker subprocess supervisor, and the cooperative
// single-threaded event loop that drains worker pipes and terminal
// input. Session is constructed once and passed explicitly to the
// classifier and the TUI; there is no package-level mutable state.
package state

import (
	"time"

	"github.com/elee1766/btdu/pkg/classifier"
)

// StopConditions are the optional headless run limits; a zero value
// disables the corresponding check.
type StopConditions struct {
	MaxSamples     uint64
	MaxTime        time.Duration
	MinResolution  uint64 // stop once totalSize/sampleCount <= this
}

// Session is the process-wide aggregate: the shared classifier state,
// the set of live worker processes, and the UI-local fields (pause
// flag, quit flag) that only the event loop/TUI may mutate. The
// classifier is the sole mutator of the BrowserPath counters reached
// through Shared; no locking is needed because everything in this
// struct is only ever touched from the single event-loop goroutine.
type Session struct {
	FSPath    string
	TotalSize uint64
	StartedAt time.Time

	Shared  *classifier.Shared
	Workers []*WorkerProc

	Stop StopConditions

	Paused   bool
	Quitting bool
	FatalErr error
}

// SampleCount reads the classifier's running total directly: it is the
// single source of truth, incremented exactly once per processed
// ResultEnd, and duplicating it here would risk drift.
func (s *Session) SampleCount() uint64 {
	return s.Shared.SampleCount
}

// NewSession creates a Session over an already-populated classifier.Shared.
func NewSession(fsPath string, totalSize uint64, shared *classifier.Shared) *Session {
	return &Session{
		FSPath:    fsPath,
		TotalSize: totalSize,
		StartedAt: time.Now(),
		Shared:    shared,
	}
}

// Resolution returns the average filesystem space each completed
// sample stands for, per the GLOSSARY definition. Returns TotalSize
// when no samples have completed yet (infinite resolution).
func (s *Session) Resolution() uint64 {
	n := s.SampleCount()
	if n == 0 {
		return s.TotalSize
	}
	return s.TotalSize / n
}

// ShouldStop reports whether any headless termination condition has
// been met; any single one triggers a graceful stop.
func (s *Session) ShouldStop() bool {
	if s.Quitting || s.FatalErr != nil {
		return true
	}
	n := s.SampleCount()
	if s.Stop.MaxSamples != 0 && n >= s.Stop.MaxSamples {
		return true
	}
	if s.Stop.MaxTime != 0 && time.Since(s.StartedAt) >= s.Stop.MaxTime {
		return true
	}
	if s.Stop.MinResolution != 0 && n > 0 && s.Resolution() <= s.Stop.MinResolution {
		return true
	}
	return false
}
