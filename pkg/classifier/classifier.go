// Package classifier implements the main process's per-worker state
// machine: draining wire messages into a running sample, selecting a
// representative path when several reference the same offset, and
// apportioning the four size metrics across the shared BrowserPath /
// GlobalPath tries.
package classifier

import (
	"fmt"
	"time"

	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/trie"
	"github.com/elee1766/btdu/pkg/wire"
)

// RootMeta is the subvolume metadata needed for representative
// selection, captured from each worker's NewRoot frame.
type RootMeta struct {
	Readonly bool
	OTime    time.Time
}

// PolicyFlags are the user-toggleable representative-selection
// preferences: both default to "prefer rw, prefer newer" and can be
// individually reversed.
type PolicyFlags struct {
	PreferReadOnly    bool
	ChronoOldestFirst bool
}

// Shared holds the structures every per-worker Classifier mutates in
// common: the single BrowserPath trie the TUI/export walk, the
// GlobalPath interning table, one SubPath trie per subvolume root, and
// the tree_id -> GlobalPath root map populated as NewRoot frames
// arrive.
type Shared struct {
	Browser     *trie.BrowserTrie
	GlobalTable *trie.GlobalPathTable
	SubTries    map[uint64]*trie.SubPathTrie
	Roots       map[uint64]*trie.GlobalPath
	RootMetas   map[uint64]RootMeta

	Expert bool
	Policy PolicyFlags

	// NewSubPathTrie constructs a fresh SubPathTrie for a newly
	// discovered root, using the arena/slab the caller owns.
	NewSubPathTrie func() *trie.SubPathTrie

	// TotalSize and SampleCount are the process-wide aggregate
	// counters; the first worker's Start frame sets TotalSize.
	TotalSize   uint64
	SampleCount uint64
}

// TopLevelRootID is the btrfs top-level subvolume's tree id.
const TopLevelRootID = 5

// NewShared creates a Shared with the top-level root (id 5) seeded as
// the trie's mount point: its GlobalPath is nil (the browser root
// itself), matching the convention that path concatenation against a
// nil GlobalPath parent yields just the SubPath segments.
func NewShared(browser *trie.BrowserTrie, globalTable *trie.GlobalPathTable, newSubTrie func() *trie.SubPathTrie) *Shared {
	s := &Shared{
		Browser:        browser,
		GlobalTable:    globalTable,
		SubTries:       make(map[uint64]*trie.SubPathTrie),
		Roots:          make(map[uint64]*trie.GlobalPath),
		RootMetas:      make(map[uint64]RootMeta),
		NewSubPathTrie: newSubTrie,
	}
	s.Roots[TopLevelRootID] = nil
	s.SubTries[TopLevelRootID] = newSubTrie()
	s.RootMetas[TopLevelRootID] = RootMeta{}
	return s
}

// workerState is the per-worker message-driven state machine's current
// mode.
type workerState int

const (
	stateIdle workerState = iota
	stateInode
)

// candidate is one GlobalPath a sample resolved to, tagged with the
// subvolume root it was resolved against so representative selection
// can look up that root's read-only/otime metadata.
type candidate struct {
	gp     *trie.GlobalPath
	rootID uint64
}

// sampleScratch is reusable per-sample buffer space: cleared, not
// reallocated, between samples.
type sampleScratch struct {
	offset          sampling.Offset
	browserBase     trie.BrowserPath
	noInodeExpected bool
	ignoringOffset  bool
	retryEmpty      bool

	paths []candidate

	curInodeRootID uint64
	curInodeGP     *trie.GlobalPath
	curInodePaths  []candidate
	sawInodePath   bool
}

func (s *sampleScratch) reset() {
	s.paths = s.paths[:0]
	s.curInodePaths = s.curInodePaths[:0]
	s.sawInodePath = false
	s.ignoringOffset = false
	s.retryEmpty = false
}

// Worker drives the state machine for exactly one worker subprocess's
// message stream.
type Worker struct {
	shared  *Shared
	state   workerState
	started bool
	cur     sampleScratch
}

// NewWorker creates a Worker bound to the given Shared aggregate.
func NewWorker(shared *Shared) *Worker {
	return &Worker{shared: shared}
}

// ErrFatal wraps a FatalError message from the worker; receiving it
// means the run must terminate.
type ErrFatal struct {
	Msg string
}

func (e *ErrFatal) Error() string { return "classifier: worker fatal: " + e.Msg }

// Handle processes one decoded wire message, advancing the worker's
// state machine and, on ResultEnd, performing end-of-sample
// classification against the shared tries.
func (w *Worker) Handle(msg any) error {
	switch m := msg.(type) {
	case *wire.Start:
		if !w.started {
			if w.shared.TotalSize == 0 {
				w.shared.TotalSize = m.TotalSize
			}
			w.started = true
		}
		return nil

	case *wire.NewRoot:
		return w.handleNewRoot(m)

	case *wire.ResultStart:
		w.cur.reset()
		w.cur.offset = sampling.Offset{
			Logical:  sampling.LogicalAddr(m.Logical),
			DevID:    sampling.DeviceID(m.DevID),
			Physical: sampling.PhysicalAddr(m.Physical),
		}
		base, noInode, err := w.classifyChunkBase(m.ChunkFlags, sampling.LogicalAddr(m.Logical))
		if err != nil {
			return err
		}
		w.cur.browserBase = base
		w.cur.noInodeExpected = noInode
		w.state = stateIdle
		return nil

	case *wire.ResultIgnoringOffset:
		w.cur.ignoringOffset = true
		return nil

	case *wire.ResultInodeStart:
		w.cur.curInodeRootID = m.RootID
		w.cur.curInodeGP = w.shared.Roots[m.RootID]
		w.cur.curInodePaths = w.cur.curInodePaths[:0]
		w.cur.sawInodePath = false
		w.state = stateInode
		return nil

	case *wire.Result:
		return w.handleResultPath(m.Path)

	case *wire.ResultInodeError:
		return w.handleInodeError(m)

	case *wire.ResultInodeEnd:
		if !w.cur.sawInodePath {
			w.appendSpecialInCurrentInode("NO_PATH")
		}
		w.cur.paths = append(w.cur.paths, w.cur.curInodePaths...)
		w.state = stateIdle
		return nil

	case *wire.ResultError:
		w.appendTopLevelError(m.Msg)
		return nil

	case *wire.ResultEnd:
		d := time.Duration(m.DurationHnsecs) * 100
		w.classify(d)
		w.shared.SampleCount++
		w.cur.reset()
		return nil

	case *wire.FatalError:
		return &ErrFatal{Msg: m.Msg}

	default:
		return fmt.Errorf("classifier: unexpected message %T", msg)
	}
}

func (w *Worker) handleNewRoot(m *wire.NewRoot) error {
	parentGP, ok := w.shared.Roots[m.ParentRootID]
	if !ok && m.ParentRootID != 0 {
		return fmt.Errorf("classifier: NewRoot %d references unknown parent %d", m.RootID, m.ParentRootID)
	}
	parentSub, ok := w.shared.SubTries[m.ParentRootID]
	if !ok {
		return fmt.Errorf("classifier: NewRoot %d references unknown parent subtrie %d", m.RootID, m.ParentRootID)
	}
	nameNode, err := parentSub.AppendName(parentSub.Root(), m.Name)
	if err != nil {
		return fmt.Errorf("classifier: NewRoot %d bad name: %w", m.RootID, err)
	}
	gp := w.shared.GlobalTable.Append(parentGP, nameNode)
	w.shared.Roots[m.RootID] = gp
	w.shared.SubTries[m.RootID] = w.shared.NewSubPathTrie()
	var otime time.Time
	if m.OTimeUnix > 0 {
		otime = time.Unix(m.OTimeUnix, 0)
	}
	w.shared.RootMetas[m.RootID] = RootMeta{Readonly: m.Readonly, OTime: otime}
	return nil
}

// classifyChunkBase builds the special-node prefix ("\0DATA/\0SINGLE",
// "\0UNALLOCATED", "\0SLACK", ...) a sample's chunk flags select, and
// reports whether no inode can follow for this chunk kind (true for
// everything except DATA block groups).
func (w *Worker) classifyChunkBase(chunkFlags uint64, logical sampling.LogicalAddr) (trie.BrowserPath, bool, error) {
	root := w.shared.Browser.Root()
	switch logical {
	case sampling.HoleAddr:
		n, err := w.shared.Browser.AppendName(root, trie.Special("UNALLOCATED"))
		return n, true, err
	case sampling.SlackAddr:
		n, err := w.shared.Browser.AppendName(root, trie.Special("SLACK"))
		return n, true, err
	}
	entry := sampling.ChunkEntry{Flags: chunkFlags}
	n, err := w.shared.Browser.AppendName(root, trie.Special(entry.BlockGroupName()))
	if err != nil {
		return nil, false, err
	}
	n, err = w.shared.Browser.AppendName(n, trie.Special(entry.ProfileName()))
	if err != nil {
		return nil, false, err
	}
	return n, !entry.IsDataBlockGroup(), nil
}

func (w *Worker) handleResultPath(path string) error {
	sub := w.shared.SubTries[w.cur.curInodeRootID]
	if sub == nil {
		return fmt.Errorf("classifier: Result for unknown root %d", w.cur.curInodeRootID)
	}
	node, err := sub.AppendPath(sub.Root(), path)
	if err != nil {
		return fmt.Errorf("classifier: bad path %q: %w", path, err)
	}
	gp := w.shared.GlobalTable.Append(w.cur.curInodeGP, node)
	w.cur.curInodePaths = append(w.cur.curInodePaths, candidate{gp: gp, rootID: w.cur.curInodeRootID})
	w.cur.sawInodePath = true
	return nil
}

func (w *Worker) handleInodeError(m *wire.ResultInodeError) error {
	sub := w.shared.SubTries[w.cur.curInodeRootID]
	if sub == nil {
		return fmt.Errorf("classifier: ResultInodeError for unknown root %d", w.cur.curInodeRootID)
	}
	node, err := sub.AppendPath(sub.Root(), trie.Special("ERROR")+"/"+m.Msg+"/"+errnoName(m.Errno))
	if err != nil {
		return err
	}
	gp := w.shared.GlobalTable.Append(w.cur.curInodeGP, node)
	w.cur.curInodePaths = append(w.cur.curInodePaths, candidate{gp: gp, rootID: w.cur.curInodeRootID})
	w.cur.sawInodePath = true
	return nil
}

func (w *Worker) appendSpecialInCurrentInode(name string) {
	sub := w.shared.SubTries[w.cur.curInodeRootID]
	node, _ := sub.AppendName(sub.Root(), trie.Special(name))
	gp := w.shared.GlobalTable.Append(w.cur.curInodeGP, node)
	w.cur.curInodePaths = append(w.cur.curInodePaths, candidate{gp: gp, rootID: w.cur.curInodeRootID})
}

func (w *Worker) appendTopLevelError(msg string) {
	sub := w.shared.SubTries[TopLevelRootID]
	node, _ := sub.AppendPath(sub.Root(), trie.Special("ERROR")+"/"+msg)
	gp := w.shared.GlobalTable.Append(w.shared.Roots[TopLevelRootID], node)
	w.cur.paths = append(w.cur.paths, candidate{gp: gp, rootID: TopLevelRootID})
}
