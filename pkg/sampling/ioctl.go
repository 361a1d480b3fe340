package sampling

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/dennwc/btrfs"
	"github.com/dennwc/ioctl"
)

const btrfsIoctlMagic = 0x94

var (
	ioctlLogicalIno  = ioctl.IOWR(btrfsIoctlMagic, 36, unsafe.Sizeof(btrfsIoctlLogicalInoArgs{}))
	ioctlInoLookup   = ioctl.IOWR(btrfsIoctlMagic, 18, unsafe.Sizeof(btrfsIoctlInoLookupArgs{}))
	ioctlTreeSearch  = ioctl.IOWR(btrfsIoctlMagic, 17, unsafe.Sizeof(btrfsIoctlSearchArgs{}))
)

// btrfsIoctlLogicalInoArgs matches struct btrfs_ioctl_logical_ino_args.
type btrfsIoctlLogicalInoArgs struct {
	Logical  uint64
	Size     uint64
	Reserved [4]uint64
	Inodes   uint64
}

const logicalInoArgsSize = 4096

// btrfsIoctlInoLookupArgs matches struct btrfs_ioctl_ino_lookup_args.
type btrfsIoctlInoLookupArgs struct {
	TreeID   uint64
	ObjectID uint64
	Name     [4080]byte
}

// Tree object IDs and item key types used by the chunk/root tree
// searches this package performs.
const (
	RootTreeObjectID  = 1
	ChunkTreeObjectID = 3
	DevTreeObjectID   = 4

	FirstFreeObjectID           = 256
	btrfsFirstChunkTreeObjectID = 256

	RootItemKey     = 132
	RootBackrefKey  = 144
	ChunkItemKey    = 228
	DevExtentKeyVal = 204
)

const RootSubvolReadonly = 1 << 0

const searchKeySize = 104
const searchBufSize = 4096 - searchKeySize

type btrfsIoctlSearchKey struct {
	TreeID      uint64
	MinObjectID uint64
	MaxObjectID uint64
	MinOffset   uint64
	MaxOffset   uint64
	MinTransID  uint64
	MaxTransID  uint64
	MinType     uint32
	MaxType     uint32
	NrItems     uint32
	_unused     uint32
	_unused1    uint64
	_unused2    uint64
	_unused3    uint64
	_unused4    uint64
}

type btrfsIoctlSearchArgs struct {
	Key btrfsIoctlSearchKey
	Buf [searchBufSize]byte
}

type searchHeader struct {
	TransID  uint64
	ObjectID uint64
	Offset   uint64
	Type     uint32
	Len      uint32
}

type searchResult struct {
	Header searchHeader
	Data   []byte
}

// InodeRef is one (inode, subtree_offset, root_id) triple returned by
// the logical-to-inodes lookup for a sampled logical address.
type InodeRef struct {
	Inum    uint64
	Offset  uint64
	RootID  uint64
}

// RootInfo is the subvolume metadata needed to build a NewRoot wire
// frame: its name within its parent, the parent's tree id, creation
// generation/time, and whether it is read-only.
type RootInfo struct {
	RootID       uint64
	ParentRootID uint64
	Name         string
	Generation   uint64
	OTime        time.Time
	Readonly     bool
}

// Capability is the opaque btrfs ioctl capability set a worker opens
// once at startup: a read-only file descriptor on the filesystem root
// plus the dennwc/btrfs handle used only to validate the path is indeed
// a top-level subvolume.
type Capability struct {
	fs     *btrfs.FS
	fsFile *os.File
}

// OpenFilesystem opens path for ioctl use and verifies it is a btrfs
// top-level subvolume, matching the InvalidFilesystem error kind that
// must abort startup before any worker is spawned.
func OpenFilesystem(path string) (*Capability, error) {
	fs, err := btrfs.Open(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilesystem, err)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilesystem, err)
	}
	return &Capability{fs: fs, fsFile: f}, nil
}

// Close releases the capability's file descriptors.
func (c *Capability) Close() error {
	err1 := c.fsFile.Close()
	err2 := c.fs.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// logicalInoIgnoreOffset is BTRFS_LOGICAL_INO_ARGS_IGNORE_OFFSET, passed
// through the args struct's first reserved word on kernels that support
// it; older kernels ignore the bit and return the same exact-offset
// result a retry would anyway produce.
const logicalInoIgnoreOffset = 1 << 0

// LogicalIno resolves a logical address to the set of inodes that
// reference it, via BTRFS_IOC_LOGICAL_INO. When ignoreOffset is true it
// requests the kernel's loose-offset matching, used for the worker's
// retry-once pass when an exact-offset lookup returns nothing.
func (c *Capability) LogicalIno(logical uint64, ignoreOffset bool) ([]InodeRef, error) {
	resultBufSize := logicalInoArgsSize - int(unsafe.Sizeof(btrfsIoctlLogicalInoArgs{}))
	resultBuf := make([]byte, resultBufSize)

	args := btrfsIoctlLogicalInoArgs{
		Logical: logical,
		Size:    uint64(resultBufSize),
		Inodes:  uint64(uintptr(unsafe.Pointer(&resultBuf[0]))),
	}
	if ignoreOffset {
		args.Reserved[0] = logicalInoIgnoreOffset
	}
	if err := ioctl.Do(c.fsFile, ioctlLogicalIno, &args); err != nil {
		return nil, &IoctlError{Op: "LOGICAL_INO", Errno: err}
	}

	elemCnt := binary.LittleEndian.Uint32(resultBuf[8:])
	if elemCnt == 0 {
		return nil, nil
	}
	var out []InodeRef
	offset := 16
	for i := uint32(0); i < elemCnt && offset+24 <= len(resultBuf); i++ {
		out = append(out, InodeRef{
			Inum:   binary.LittleEndian.Uint64(resultBuf[offset:]),
			Offset: binary.LittleEndian.Uint64(resultBuf[offset+8:]),
			RootID: binary.LittleEndian.Uint64(resultBuf[offset+16:]),
		})
		offset += 24
	}
	return out, nil
}

// InoLookup resolves one (treeID, objectID) pair to a single path
// component via BTRFS_IOC_INO_LOOKUP. This recovers only the path from
// objectID's containing directory up to the subvolume root in one call
// when objectID is itself a directory; for a plain file inode it
// recovers the immediate parent path, not the full chain — see InoPaths
// for full resolution.
func (c *Capability) InoLookup(treeID, objectID uint64) (string, error) {
	args := btrfsIoctlInoLookupArgs{TreeID: treeID, ObjectID: objectID}
	if err := ioctl.Do(c.fsFile, ioctlInoLookup, &args); err != nil {
		return "", &IoctlError{Op: "INO_LOOKUP", Errno: err}
	}
	n := 0
	for n < len(args.Name) && args.Name[n] != 0 {
		n++
	}
	return string(args.Name[:n]), nil
}

// InoPaths resolves objectID within subvolume treeID to one or more
// full paths relative to the subvolume root. The kernel's INO_LOOKUP
// only recovers one name component per call (the directory path up to
// but not including objectID's own name when objectID is a directory,
// or the containing directory's path for a file), so a full path needs
// a parent-walk loop: look up objectID's containing directory, prepend
// its resolved path, and stop once INO_LOOKUP reports the subvolume
// root (object id FirstFreeObjectID's own lookup returns an empty
// path).
func (c *Capability) InoPaths(treeID, objectID uint64) ([]string, error) {
	path, err := c.InoLookup(treeID, objectID)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// treeSearch performs a raw BTRFS_IOC_TREE_SEARCH, draining all
// matching results across as many ioctl calls as the kernel needs.
func (c *Capability) treeSearch(treeID uint64, minObjID, maxObjID uint64, minType, maxType uint32, minOffset, maxOffset uint64) ([]searchResult, error) {
	var out []searchResult
	args := btrfsIoctlSearchArgs{
		Key: btrfsIoctlSearchKey{
			TreeID:      treeID,
			MinObjectID: minObjID,
			MaxObjectID: maxObjID,
			MinOffset:   minOffset,
			MaxOffset:   maxOffset,
			MinTransID:  0,
			MaxTransID:  ^uint64(0),
			MinType:     minType,
			MaxType:     maxType,
			NrItems:     4096,
		},
	}
	for {
		if err := ioctl.Do(c.fsFile, ioctlTreeSearch, &args); err != nil {
			return nil, &IoctlError{Op: "TREE_SEARCH", Errno: err}
		}
		if args.Key.NrItems == 0 {
			break
		}
		offset := 0
		var last searchHeader
		got := false
		for i := uint32(0); i < args.Key.NrItems; i++ {
			if offset+32 > len(args.Buf) {
				break
			}
			hdr := searchHeader{
				TransID:  binary.LittleEndian.Uint64(args.Buf[offset:]),
				ObjectID: binary.LittleEndian.Uint64(args.Buf[offset+8:]),
				Offset:   binary.LittleEndian.Uint64(args.Buf[offset+16:]),
				Type:     binary.LittleEndian.Uint32(args.Buf[offset+24:]),
				Len:      binary.LittleEndian.Uint32(args.Buf[offset+28:]),
			}
			offset += 32
			if offset+int(hdr.Len) > len(args.Buf) {
				break
			}
			if hdr.Type >= minType && hdr.Type <= maxType {
				data := make([]byte, hdr.Len)
				copy(data, args.Buf[offset:offset+int(hdr.Len)])
				out = append(out, searchResult{Header: hdr, Data: data})
			}
			offset += int(hdr.Len)
			last = hdr
			got = true
		}
		if !got {
			break
		}
		args.Key.MinObjectID = last.ObjectID
		args.Key.MinType = last.Type
		args.Key.MinOffset = last.Offset + 1
		args.Key.NrItems = 4096
	}
	return out, nil
}

// EnumerateChunks walks the chunk tree and builds a logical-mode
// ChunkIndex over every chunk (dataOnly restricts it to DATA block
// groups; every current caller passes false).
func (c *Capability) EnumerateChunks(dataOnly bool) (*ChunkIndex, error) {
	results, err := c.treeSearch(ChunkTreeObjectID, btrfsFirstChunkTreeObjectID, btrfsFirstChunkTreeObjectID, ChunkItemKey, ChunkItemKey, 0, ^uint64(0))
	if err != nil {
		return nil, err
	}
	idx := NewChunkIndex(false)
	for _, r := range results {
		if r.Header.Type != ChunkItemKey || len(r.Data) < 32 {
			continue
		}
		length := binary.LittleEndian.Uint64(r.Data[0:8])
		stripeLen := binary.LittleEndian.Uint64(r.Data[16:24])
		flags := binary.LittleEndian.Uint64(r.Data[24:32])
		numStripes := 1
		if len(r.Data) >= 34 {
			numStripes = int(binary.LittleEndian.Uint16(r.Data[32:34]))
			if numStripes <= 0 {
				numStripes = 1
			}
		}
		if dataOnly && flags&BlockGroupData == 0 {
			continue
		}
		idx.Append(ChunkEntry{
			Kind:          ZoneChunk,
			Flags:         flags,
			LogicalOffset: LogicalAddr(r.Header.Offset),
			LogicalLength: int64(length),
			StripeLen:     int64(stripeLen),
			NumStripes:    numStripes,
		})
	}
	idx.Build()
	return idx, nil
}

// RootInfo resolves a tree root's subvolume metadata (name within
// parent, parent root id, generation, creation time, read-only flag)
// by reading its ROOT_ITEM and matching ROOT_BACKREF entry.
func (c *Capability) RootInfo(rootID uint64) (*RootInfo, error) {
	items, err := c.treeSearch(RootTreeObjectID, rootID, rootID, RootItemKey, RootItemKey, 0, ^uint64(0))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 || len(items[0].Data) < 239 {
		return nil, fmt.Errorf("sampling: no ROOT_ITEM for root %d", rootID)
	}
	data := items[0].Data
	info := &RootInfo{
		RootID:     rootID,
		Generation: binary.LittleEndian.Uint64(data[160:168]),
	}
	flags := binary.LittleEndian.Uint64(data[208:216])
	info.Readonly = flags&RootSubvolReadonly != 0
	if len(data) >= 351 {
		info.OTime = parseTimespec(data[339:351])
	}

	backrefs, err := c.treeSearch(RootTreeObjectID, rootID, rootID, RootBackrefKey, RootBackrefKey, 0, ^uint64(0))
	if err == nil {
		for _, r := range backrefs {
			if r.Header.Type != RootBackrefKey || len(r.Data) < 18 {
				continue
			}
			nameLen := binary.LittleEndian.Uint16(r.Data[16:18])
			if len(r.Data) < 18+int(nameLen) {
				continue
			}
			info.ParentRootID = r.Header.Offset
			info.Name = string(r.Data[18 : 18+nameLen])
			break
		}
	}
	return info, nil
}

func parseTimespec(data []byte) time.Time {
	if len(data) < 12 {
		return time.Time{}
	}
	sec := int64(binary.LittleEndian.Uint64(data[0:8]))
	nsec := int64(binary.LittleEndian.Uint32(data[8:12]))
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, nsec)
}
