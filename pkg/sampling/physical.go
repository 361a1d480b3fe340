package sampling

import "encoding/binary"

// deviceExtent is one on-disk extent claimed by a chunk on a specific
// device, as recorded in the device tree.
type deviceExtent struct {
	devID      uint64
	physOffset uint64
	length     uint64
	chunkStart uint64
}

// EnumerateDeviceExtents builds a physical-mode ChunkIndex: one zone per
// on-disk extent (carrying the owning chunk's flags/stripe geometry),
// one HOLE zone for every gap between consecutive extents on a device,
// and one SLACK zone for the tail of each device beyond its last claimed
// extent but within the device's reported total size.
func (c *Capability) EnumerateDeviceExtents(deviceSizes map[uint64]int64) (*ChunkIndex, error) {
	chunkFlags := make(map[uint64]uint64)
	chunkStripes := make(map[uint64]struct {
		stripeLen int64
		numStripe int
	})
	chunkItems, err := c.treeSearch(ChunkTreeObjectID, btrfsFirstChunkTreeObjectID, btrfsFirstChunkTreeObjectID, ChunkItemKey, ChunkItemKey, 0, ^uint64(0))
	if err == nil {
		for _, r := range chunkItems {
			if r.Header.Type != ChunkItemKey || len(r.Data) < 32 {
				continue
			}
			flags := binary.LittleEndian.Uint64(r.Data[24:32])
			stripeLen := int64(binary.LittleEndian.Uint64(r.Data[16:24]))
			numStripes := 1
			if len(r.Data) >= 34 {
				numStripes = int(binary.LittleEndian.Uint16(r.Data[32:34]))
				if numStripes <= 0 {
					numStripes = 1
				}
			}
			chunkFlags[r.Header.Offset] = flags
			chunkStripes[r.Header.Offset] = struct {
				stripeLen int64
				numStripe int
			}{stripeLen, numStripes}
		}
	}

	devResults, err := c.treeSearch(DevTreeObjectID, 1, ^uint64(0), DevExtentKeyVal, DevExtentKeyVal, 0, ^uint64(0))
	if err != nil {
		return nil, err
	}

	byDevice := make(map[uint64][]deviceExtent)
	for _, r := range devResults {
		if r.Header.Type != DevExtentKeyVal || len(r.Data) < 32 {
			continue
		}
		ext := deviceExtent{
			devID:      r.Header.ObjectID,
			physOffset: r.Header.Offset,
			chunkStart: binary.LittleEndian.Uint64(r.Data[16:24]),
			length:     binary.LittleEndian.Uint64(r.Data[24:32]),
		}
		byDevice[ext.devID] = append(byDevice[ext.devID], ext)
	}

	idx := NewChunkIndex(true)
	for devID, exts := range byDevice {
		sortExtentsByOffset(exts)
		var cursor uint64
		for _, ext := range exts {
			if ext.physOffset > cursor {
				idx.Append(ChunkEntry{
					Kind:           ZoneHole,
					DevID:          DeviceID(devID),
					PhysicalOffset: PhysicalAddr(cursor),
					PhysicalLength: int64(ext.physOffset - cursor),
				})
			}
			geo := chunkStripes[ext.chunkStart]
			idx.Append(ChunkEntry{
				Kind:           ZoneChunk,
				Flags:          chunkFlags[ext.chunkStart],
				LogicalOffset:  LogicalAddr(ext.chunkStart),
				LogicalLength:  int64(ext.length),
				DevID:          DeviceID(devID),
				PhysicalOffset: PhysicalAddr(ext.physOffset),
				PhysicalLength: int64(ext.length),
				StripeLen:      geo.stripeLen,
				NumStripes:     geo.numStripe,
			})
			cursor = ext.physOffset + ext.length
		}
		if size, ok := deviceSizes[devID]; ok && int64(cursor) < size {
			idx.Append(ChunkEntry{
				Kind:           ZoneSlack,
				DevID:          DeviceID(devID),
				PhysicalOffset: PhysicalAddr(cursor),
				PhysicalLength: size - int64(cursor),
			})
		}
	}
	idx.Build()
	return idx, nil
}

func sortExtentsByOffset(exts []deviceExtent) {
	for i := 1; i < len(exts); i++ {
		for j := i; j > 0 && exts[j-1].physOffset > exts[j].physOffset; j-- {
			exts[j-1], exts[j] = exts[j], exts[j-1]
		}
	}
}
