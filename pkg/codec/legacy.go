package codec

import (
	"encoding/json"
	"io"
	"time"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/trie"
)

// legacyEntry is one row of the pre-binary export format: a flat list
// of absolute browser paths with their three counters. It predates the
// sharing-group/distributed-duration accounting this package's native
// format carries, so a legacy import always produces zeroed
// DistributedSamples/DistributedDuration and an empty SeenAs set.
type legacyEntry struct {
	Path             string `json:"path"`
	RepresentedCount uint64 `json:"represented_count"`
	RepresentedNsecs int64  `json:"represented_nsecs"`
	ExclusiveCount   uint64 `json:"exclusive_count"`
	ExclusiveNsecs   int64  `json:"exclusive_nsecs"`
	SharedCount      uint64 `json:"shared_count"`
	SharedNsecs      int64  `json:"shared_nsecs"`
}

type legacyFile struct {
	FSPath    string        `json:"fs_path"`
	TotalSize uint64        `json:"total_size"`
	Entries   []legacyEntry `json:"entries"`
}

// ImportLegacyJSON reads the flat JSON export format this module's
// predecessor wrote. It is read-only: this package never writes this
// format, only reads it for backward compatibility with old export
// files.
func ImportLegacyJSON(r io.Reader) (*Snapshot, error) {
	var lf legacyFile
	if err := json.NewDecoder(r).Decode(&lf); err != nil {
		return nil, err
	}

	a := arena.New(64 * 1024)
	slab := arena.NewSlab[trie.Node[trie.BrowserPathData]](256, false)
	browser := trie.NewBrowserTrie(a, slab)

	var sampleCount uint64
	for _, e := range lf.Entries {
		node, err := browser.AppendPath(browser.Root(), e.Path)
		if err != nil {
			return nil, err
		}
		node.Data.Counters[trie.Represented] = trie.SampleStats{
			Samples:  e.RepresentedCount,
			Duration: time.Duration(e.RepresentedNsecs),
		}
		node.Data.Counters[trie.Exclusive] = trie.SampleStats{
			Samples:  e.ExclusiveCount,
			Duration: time.Duration(e.ExclusiveNsecs),
		}
		node.Data.Counters[trie.Shared] = trie.SampleStats{
			Samples:  e.SharedCount,
			Duration: time.Duration(e.SharedNsecs),
		}
		sampleCount += e.RepresentedCount
	}

	return &Snapshot{
		Header: Header{
			FormatVersion: 0,
			TotalSize:     lf.TotalSize,
			FSPath:        lf.FSPath,
		},
		Browser:     browser,
		SampleCount: sampleCount,
	}, nil
}
