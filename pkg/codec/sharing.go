package codec

import (
	"math"
	"time"

	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/trie"
)

// encodeOffset visits one sampling.Offset as three zigzag varints.
func encodeOffset(v *visitor, o *sampling.Offset) {
	logical := int64(o.Logical)
	devID := int64(o.DevID)
	physical := int64(o.Physical)
	v.zigzag(&logical)
	v.zigzag(&devID)
	v.zigzag(&physical)
	if v.isW {
		return
	}
	o.Logical = sampling.LogicalAddr(logical)
	o.DevID = sampling.DeviceID(devID)
	o.Physical = sampling.PhysicalAddr(physical)
}

func encodeStats(v *visitor, s *trie.SampleStats) {
	v.varint(&s.Samples)
	dur := int64(s.Duration)
	v.zigzag(&dur)
	if !v.isW {
		s.Duration = time.Duration(dur)
	}

	items := s.Offsets.Items()
	n := uint64(len(items))
	v.varint(&n)
	if v.isW {
		for i := range items {
			encodeOffset(v, &items[i])
		}
		return
	}
	decoded := make([]sampling.Offset, n)
	for i := range decoded {
		encodeOffset(v, &decoded[i])
	}
	s.Offsets.SetItems(decoded)
}

// encodeBrowserPayload writes one BrowserPath node's SharingGroup: its
// three SampleStats counters, distributed-sample weight and duration,
// and the SeenAs multiset, each entry referencing the GlobalPath-root
// table by index. Mark is carried in the separate Marks table, not
// here.
func encodeBrowserPayload(v *visitor, gpx *globalPathIndexer, d *trie.BrowserPathData) {
	for i := range d.Counters {
		encodeStats(v, &d.Counters[i])
	}

	bits := math.Float64bits(d.DistributedSamples)
	v.fixed64(&bits)
	distDur := int64(d.DistributedDuration)
	v.zigzag(&distDur)

	n := uint64(len(d.SeenAs))
	v.varint(&n)
	for p, count := range d.SeenAs {
		idx := gpx.index[p]
		c := count
		v.varintInt(&idx)
		v.varintInt(&c)
	}
}

// decodeBrowserPayload reads a SharingGroup written by
// encodeBrowserPayload, resolving SeenAs entries by indexing into
// globalNodes.
func decodeBrowserPayload(v *visitor, globalNodes []*trie.GlobalPath) (trie.BrowserPathData, error) {
	var d trie.BrowserPathData
	for i := range d.Counters {
		encodeStats(v, &d.Counters[i])
	}

	var bits uint64
	v.fixed64(&bits)
	d.DistributedSamples = math.Float64frombits(bits)
	var distDur int64
	v.zigzag(&distDur)
	d.DistributedDuration = time.Duration(distDur)

	var n uint64
	v.varint(&n)
	if v.err != nil {
		return d, v.err
	}
	if n > 0 {
		d.SeenAs = make(map[*trie.GlobalPath]int, n)
	}
	for i := uint64(0); i < n; i++ {
		var idx, count int
		v.varintInt(&idx)
		v.varintInt(&count)
		if v.err != nil {
			return d, v.err
		}
		d.SeenAs[globalNodes[idx]] += count
	}

	return d, v.err
}
