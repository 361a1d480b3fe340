// Package wire implements the framed binary message protocol carried on
// a sampler worker's stdout: a {size, type} header followed by a
// type-specific body, and a streaming decoder usable against a
// non-blocking pipe that may only have a partial frame available.
package wire

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is a stable index into the compile-known tuple of message
// kinds. The list is append-only: existing indices must never be
// reassigned.
type Type uint32

const (
	TypeStart Type = iota
	TypeNewRoot
	TypeResultStart
	TypeResultIgnoringOffset
	TypeResultInodeStart
	TypeResultInodeError
	TypeResultInodeEnd
	TypeResult
	TypeResultError
	TypeResultEnd
	TypeFatalError
)

// headerSize is the fixed-width frame length prefix: a native-endian
// (little-endian) uint32 counting the whole frame including itself.
const headerSize = 4

// DeviceDesc is one device entry in a Start frame.
type DeviceDesc struct {
	DevID      uint64
	TotalBytes uint64
	Path       string
}

// Start is the first frame a worker emits: the total sampling-space
// size, the filesystem UUID, and the device list.
type Start struct {
	TotalSize uint64
	FSID      [16]byte
	Devices   []DeviceDesc
}

// NewRoot announces a subvolume root the worker has not referenced
// before. Parents are always emitted before their children.
type NewRoot struct {
	RootID       uint64
	ParentRootID uint64
	Name         string
	Generation   uint64
	OTimeUnix    int64 // seconds since epoch, 0 if unknown
	Readonly     bool
}

// ResultStart begins one sample: its chunk flags (block group type and
// profile bits), its resolved offset triple, and its sequence number.
type ResultStart struct {
	ChunkFlags  uint64
	Logical     int64
	DevID       uint64
	Physical    int64
	SampleIndex uint64
}

// ResultIgnoringOffset marks that the current sample's initial
// logical-to-inode lookup returned nothing and a retry-with-ignore-
// offset is in progress.
type ResultIgnoringOffset struct{}

// ResultInodeStart begins one inode's path list within the current
// sample, naming the subvolume root it belongs to.
type ResultInodeStart struct {
	RootID uint64
}

// ResultInodeError reports that resolving the current inode failed,
// carrying the errno and a human-readable message.
type ResultInodeError struct {
	Errno int32
	Msg   string
}

// ResultInodeEnd closes the current inode's path list.
type ResultInodeEnd struct{}

// Result carries one resolved path for the current inode.
type Result struct {
	Path string
}

// ResultError reports a top-level error unrelated to any specific
// inode (e.g. the sample's chunk lookup itself failed).
type ResultError struct {
	Msg string
}

// ResultEnd closes the current sample, carrying its resolution
// duration in hundred-nanosecond units.
type ResultEnd struct {
	DurationHnsecs uint64
}

// FatalError announces the worker is terminating.
type FatalError struct {
	Msg string
}

func appendString(b []byte, s string) []byte {
	b = protowire.AppendVarint(b, uint64(len(s)))
	return append(b, s...)
}

func frame(t Type, body []byte) []byte {
	typeBuf := protowire.AppendVarint(nil, uint64(t))
	total := headerSize + len(typeBuf) + len(body)
	out := make([]byte, headerSize, total)
	binary.LittleEndian.PutUint32(out, uint32(total))
	out = append(out, typeBuf...)
	out = append(out, body...)
	return out
}

// Encode appends the wire encoding of msg to the given type's frame.
// It panics on an unsupported message type — the set is closed and
// compile-known, so this is a programmer error, not a runtime one.
func Encode(msg any) []byte {
	switch m := msg.(type) {
	case *Start:
		var b []byte
		b = protowire.AppendVarint(b, m.TotalSize)
		b = append(b, m.FSID[:]...)
		b = protowire.AppendVarint(b, uint64(len(m.Devices)))
		for _, d := range m.Devices {
			b = protowire.AppendVarint(b, d.DevID)
			b = protowire.AppendVarint(b, d.TotalBytes)
			b = appendString(b, d.Path)
		}
		return frame(TypeStart, b)
	case *NewRoot:
		var b []byte
		b = protowire.AppendVarint(b, m.RootID)
		b = protowire.AppendVarint(b, m.ParentRootID)
		b = appendString(b, m.Name)
		b = protowire.AppendVarint(b, m.Generation)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.OTimeUnix))
		b = append(b, boolByte(m.Readonly))
		return frame(TypeNewRoot, b)
	case *ResultStart:
		var b []byte
		b = protowire.AppendVarint(b, m.ChunkFlags)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.Logical))
		b = protowire.AppendVarint(b, m.DevID)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.Physical))
		b = protowire.AppendVarint(b, m.SampleIndex)
		return frame(TypeResultStart, b)
	case *ResultIgnoringOffset:
		return frame(TypeResultIgnoringOffset, nil)
	case *ResultInodeStart:
		var b []byte
		b = protowire.AppendVarint(b, m.RootID)
		return frame(TypeResultInodeStart, b)
	case *ResultInodeError:
		var b []byte
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.Errno)))
		b = appendString(b, m.Msg)
		return frame(TypeResultInodeError, b)
	case *ResultInodeEnd:
		return frame(TypeResultInodeEnd, nil)
	case *Result:
		return frame(TypeResult, appendString(nil, m.Path))
	case *ResultError:
		return frame(TypeResultError, appendString(nil, m.Msg))
	case *ResultEnd:
		var b []byte
		b = protowire.AppendVarint(b, m.DurationHnsecs)
		return frame(TypeResultEnd, b)
	case *FatalError:
		return frame(TypeFatalError, appendString(nil, m.Msg))
	default:
		panic("wire: unsupported message type")
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
