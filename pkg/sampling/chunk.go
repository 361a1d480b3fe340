package sampling

import "sort"

// Block group type and profile flag bits, matching btrfs's on-disk
// BTRFS_BLOCK_GROUP_* constants.
const (
	BlockGroupData     = 1 << 0
	BlockGroupSystem   = 1 << 1
	BlockGroupMetadata = 1 << 2
	BlockGroupRaid0    = 1 << 3
	BlockGroupRaid1    = 1 << 4
	BlockGroupDup      = 1 << 5
	BlockGroupRaid10   = 1 << 6
	BlockGroupRaid5    = 1 << 7
	BlockGroupRaid6    = 1 << 8
	BlockGroupRaid1C3  = 1 << 9
	BlockGroupRaid1C4  = 1 << 10
)

// ZoneKind distinguishes the handful of special, non-chunk zones a
// physical-mode scan can produce from ordinary chunk-backed zones.
type ZoneKind int

const (
	ZoneChunk ZoneKind = iota
	ZoneHole
	ZoneSlack
)

// ChunkEntry is one contiguous sampling zone. Chunk entries are
// append-only during startup and never mutated afterward.
type ChunkEntry struct {
	Kind ZoneKind

	Flags uint64 // BlockGroup* bitmask, meaningless for Hole/Slack zones

	LogicalOffset LogicalAddr
	LogicalLength int64

	DevID          DeviceID
	PhysicalOffset PhysicalAddr
	PhysicalLength int64

	// StripeLen and NumStripes describe the RAID geometry for a chunk,
	// used by physical-mode logical-offset inference. Zero StripeLen
	// means "not applicable" (logical-mode zones, or Hole/Slack zones).
	StripeLen  int64
	NumStripes int
}

// length returns the zone's length along the axis the index is built
// over: logical length for logical-mode zones, physical length for
// physical-mode zones (including Hole/Slack, which have no logical
// length at all).
func (c ChunkEntry) length(physical bool) int64 {
	if physical {
		return c.PhysicalLength
	}
	return c.LogicalLength
}

// IsDataBlockGroup reports whether the chunk is a DATA block group.
func (c ChunkEntry) IsDataBlockGroup() bool {
	return c.Kind == ZoneChunk && c.Flags&BlockGroupData != 0
}

// ProfileName returns the human-readable RAID profile name for display
// as a synthetic trie node ("SINGLE", "RAID1", ...).
func (c ChunkEntry) ProfileName() string {
	switch {
	case c.Flags&BlockGroupRaid1C4 != 0:
		return "RAID1C4"
	case c.Flags&BlockGroupRaid1C3 != 0:
		return "RAID1C3"
	case c.Flags&BlockGroupRaid6 != 0:
		return "RAID6"
	case c.Flags&BlockGroupRaid5 != 0:
		return "RAID5"
	case c.Flags&BlockGroupRaid10 != 0:
		return "RAID10"
	case c.Flags&BlockGroupRaid1 != 0:
		return "RAID1"
	case c.Flags&BlockGroupRaid0 != 0:
		return "RAID0"
	case c.Flags&BlockGroupDup != 0:
		return "DUP"
	default:
		return "SINGLE"
	}
}

// BlockGroupName returns the human-readable block group type name
// ("DATA", "METADATA", "SYSTEM") for display as a synthetic trie node.
func (c ChunkEntry) BlockGroupName() string {
	switch {
	case c.Flags&BlockGroupData != 0:
		return "DATA"
	case c.Flags&BlockGroupMetadata != 0:
		return "METADATA"
	case c.Flags&BlockGroupSystem != 0:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// ChunkIndex is the append-only inventory of sampling zones built at
// worker startup. It supports offset_to_zone in O(log n) via a
// prefix-sum table sorted by starting offset, generalizing the
// teacher's linear scan to the scale this module's sampling volume
// requires.
type ChunkIndex struct {
	physical bool // true selects physical-mode sampling over physical length
	entries  []ChunkEntry
	// prefix[i] is the cumulative length of entries[:i]; prefix has
	// len(entries)+1 elements so prefix[len(entries)] == TotalSize.
	prefix []int64
	built  bool
}

// NewChunkIndex creates an empty index. physical selects whether
// offset_to_zone sums/searches over physical or logical lengths.
func NewChunkIndex(physical bool) *ChunkIndex {
	return &ChunkIndex{physical: physical}
}

// Append adds one zone to the index. Must be called before Build; the
// index is immutable once built.
func (ci *ChunkIndex) Append(e ChunkEntry) {
	if ci.built {
		panic("sampling: Append after Build")
	}
	ci.entries = append(ci.entries, e)
}

// Build sorts entries by starting position along the index's axis and
// computes the prefix-sum table. Must be called once after all zones
// have been appended and before any sampling.
func (ci *ChunkIndex) Build() {
	sort.Slice(ci.entries, func(i, j int) bool {
		return ci.startOf(ci.entries[i]) < ci.startOf(ci.entries[j])
	})
	ci.prefix = make([]int64, len(ci.entries)+1)
	for i, e := range ci.entries {
		ci.prefix[i+1] = ci.prefix[i] + e.length(ci.physical)
	}
	ci.built = true
}

func (ci *ChunkIndex) startOf(e ChunkEntry) int64 {
	if ci.physical {
		return int64(e.PhysicalOffset)
	}
	return int64(e.LogicalOffset)
}

// TotalSize returns the sum of all zone lengths.
func (ci *ChunkIndex) TotalSize() int64 {
	if !ci.built {
		panic("sampling: TotalSize before Build")
	}
	return ci.prefix[len(ci.prefix)-1]
}

// Len returns the number of zones in the index.
func (ci *ChunkIndex) Len() int { return len(ci.entries) }

// Entries returns the zones in sorted order. Callers must not mutate
// the returned slice.
func (ci *ChunkIndex) Entries() []ChunkEntry { return ci.entries }

// OffsetToZone finds the zone containing position u, 0 <= u <
// TotalSize, along with u's offset within that zone. It is implemented
// as a binary search over the prefix-sum table: O(log n) regardless of
// how many zones the filesystem has, which matters once a worker has
// drawn billions of samples against a chunk list that can run into the
// hundreds of entries for -p mode's per-device extent enumeration.
func (ci *ChunkIndex) OffsetToZone(u int64) (ChunkEntry, int64) {
	if !ci.built {
		panic("sampling: OffsetToZone before Build")
	}
	n := len(ci.entries)
	if n == 0 {
		panic("sampling: OffsetToZone on empty index")
	}
	// Find the smallest i such that prefix[i+1] > u.
	i := sort.Search(n, func(i int) bool { return ci.prefix[i+1] > u })
	if i >= n {
		i = n - 1
	}
	return ci.entries[i], u - ci.prefix[i]
}
