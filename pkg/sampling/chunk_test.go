package sampling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIndexOffsetToZone(t *testing.T) {
	idx := NewChunkIndex(false)
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 0, LogicalLength: 100})
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 100, LogicalLength: 50})
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 150, LogicalLength: 200})
	idx.Build()

	require.Equal(t, int64(350), idx.TotalSize())

	zone, within := idx.OffsetToZone(0)
	assert.Equal(t, LogicalAddr(0), zone.LogicalOffset)
	assert.Equal(t, int64(0), within)

	zone, within = idx.OffsetToZone(99)
	assert.Equal(t, LogicalAddr(0), zone.LogicalOffset)
	assert.Equal(t, int64(99), within)

	zone, within = idx.OffsetToZone(100)
	assert.Equal(t, LogicalAddr(100), zone.LogicalOffset)
	assert.Equal(t, int64(0), within)

	zone, within = idx.OffsetToZone(349)
	assert.Equal(t, LogicalAddr(150), zone.LogicalOffset)
	assert.Equal(t, int64(199), within)
}

func TestChunkIndexUnsortedAppendOrder(t *testing.T) {
	idx := NewChunkIndex(false)
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 150, LogicalLength: 200})
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 0, LogicalLength: 100})
	idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: 100, LogicalLength: 50})
	idx.Build()

	zone, within := idx.OffsetToZone(120)
	assert.Equal(t, LogicalAddr(100), zone.LogicalOffset)
	assert.Equal(t, int64(20), within)
}

func TestProfileAndBlockGroupNames(t *testing.T) {
	c := ChunkEntry{Flags: BlockGroupData | BlockGroupRaid1}
	assert.Equal(t, "DATA", c.BlockGroupName())
	assert.Equal(t, "RAID1", c.ProfileName())

	c2 := ChunkEntry{Flags: BlockGroupMetadata | BlockGroupRaid1C3}
	assert.Equal(t, "METADATA", c2.BlockGroupName())
	assert.Equal(t, "RAID1C3", c2.ProfileName())
}

func TestUniformSamplerConvergence(t *testing.T) {
	const zones = 10
	const samples = 100_000
	idx := NewChunkIndex(false)
	for i := 0; i < zones; i++ {
		idx.Append(ChunkEntry{Kind: ZoneChunk, LogicalOffset: LogicalAddr(i * 1000), LogicalLength: 1000})
	}
	idx.Build()
	space := NewLogicalSpace(idx)
	sampler := NewSampler(space, 42)

	counts := make([]int, zones)
	for i := 0; i < samples; i++ {
		zone, _ := sampler.Draw()
		counts[zone.LogicalOffset/1000]++
	}

	expected := float64(samples) / float64(zones)
	p := 1.0 / float64(zones)
	sigma := math.Sqrt(float64(samples) * p * (1 - p))
	for _, c := range counts {
		assert.InDelta(t, expected, float64(c), 5*sigma)
	}
}
