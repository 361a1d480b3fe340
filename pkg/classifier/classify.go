package classifier

import (
	"time"

	"github.com/elee1766/btdu/pkg/trie"
)

// classify performs the end-of-sample accounting against the
// accumulated scratch state: resolving the representative
// path (if any), crediting Represented/Shared/Exclusive/Distributed at
// the right nodes, and recording SeenAs for every candidate regardless
// of expert mode.
func (w *Worker) classify(d time.Duration) {
	cur := &w.cur

	if len(cur.paths) == 0 {
		node, err := w.shared.Browser.AppendName(cur.browserBase, specialNoInodeName(cur))
		if err != nil {
			return
		}
		trie.AddSample(trie.Represented, node, d, cur.offset)
		trie.AddSample(trie.Shared, node, d, cur.offset)
		trie.AddExclusive(node, d, cur.offset)
		trie.AddDistributedSample(node, 1.0, d)
		return
	}

	bps := make([]trie.BrowserPath, 0, len(cur.paths))
	for _, c := range cur.paths {
		bp, err := w.shared.Browser.AppendPath(cur.browserBase, c.gp.FullPath())
		if err != nil {
			continue
		}
		bps = append(bps, bp)
	}
	if len(bps) == 0 {
		return
	}

	reprCand := selectRepresentative(cur.paths, w.shared.RootMetas, w.shared.Policy)
	reprBP, err := w.shared.Browser.AppendPath(cur.browserBase, reprCand.gp.FullPath())
	if err == nil {
		trie.AddSample(trie.Represented, reprBP, d, cur.offset)
	}

	weight := 1.0 / float64(len(cur.paths))
	for i, bp := range bps {
		if w.shared.Expert {
			trie.AddSample(trie.Shared, bp, d, cur.offset)
			trie.AddDistributedSample(bp, weight, d)
		}
		trie.AddSeenAs(bp, cur.paths[i].gp)
	}

	if w.shared.Expert {
		ex := trie.CommonPrefix(bps)
		if ex != nil {
			trie.AddExclusive(ex, d, cur.offset)
		}
	}
}

// specialNoInodeName picks between the two synthetic leaf names a
// pathless sample can fall under: UNREACHABLE when the retry-with-
// ignore-offset pass also produced nothing, NO_INODE otherwise (the
// chunk kind never has inodes, e.g. metadata/system block groups).
func specialNoInodeName(cur *sampleScratch) string {
	if cur.ignoringOffset {
		return trie.Special("UNREACHABLE")
	}
	return trie.Special("NO_INODE")
}
