package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/btdu/pkg/trie"
)

func TestImportLegacyJSON(t *testing.T) {
	body := `{
		"fs_path": "/mnt/data",
		"total_size": 2000,
		"entries": [
			{"path": "@home/a.txt", "represented_count": 3, "represented_nsecs": 3000000, "exclusive_count": 1, "exclusive_nsecs": 1000000, "shared_count": 3, "shared_nsecs": 3000000}
		]
	}`

	snap, err := ImportLegacyJSON(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, uint64(2000), snap.Header.TotalSize)
	assert.Equal(t, "/mnt/data", snap.Header.FSPath)
	assert.Equal(t, uint64(3), snap.SampleCount)

	node, err := snap.Browser.AppendPath(snap.Browser.Root(), "@home/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), node.Data.Counters[trie.Represented].Samples)
	assert.Equal(t, 3*time.Millisecond, node.Data.Counters[trie.Represented].Duration)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Exclusive].Samples)
}
