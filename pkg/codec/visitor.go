package codec

import (
	"encoding/binary"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// visitor is the single direction-parameterized walker: every field of
// the format is visited exactly once, in the same order, whether
// writing or reading. write is nil in read mode
// and read is nil in write mode; the first error encountered is sticky
// (subsequent calls become no-ops) so callers only need to check err
// once at the end of a visit sequence.
type visitor struct {
	write io.Writer
	read  io.Reader
	isW   bool
	err   error

	// scratch avoids reallocating a 10-byte varint buffer per call.
	scratch [10]byte
}

func newVisitor(w io.Writer, r io.Reader, isWrite bool) *visitor {
	return &visitor{write: w, read: r, isW: isWrite}
}

func (v *visitor) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

// varint visits one unsigned 64-bit field as LEB128.
func (v *visitor) varint(x *uint64) {
	if v.err != nil {
		return
	}
	if v.isW {
		buf := protowire.AppendVarint(v.scratch[:0], *x)
		_, err := v.write.Write(buf)
		v.fail(err)
		return
	}
	val, err := readVarint(v.read)
	if err != nil {
		v.fail(err)
		return
	}
	*x = val
}

// varintInt is varint for plain int fields (counts, indices).
func (v *visitor) varintInt(x *int) {
	var u uint64
	if v.isW {
		u = uint64(*x)
	}
	v.varint(&u)
	if !v.isW {
		*x = int(u)
	}
}

// zigzag visits one signed 64-bit field as a zigzag varint.
func (v *visitor) zigzag(x *int64) {
	if v.err != nil {
		return
	}
	if v.isW {
		u := protowire.EncodeZigZag(*x)
		buf := protowire.AppendVarint(v.scratch[:0], u)
		_, err := v.write.Write(buf)
		v.fail(err)
		return
	}
	val, err := readVarint(v.read)
	if err != nil {
		v.fail(err)
		return
	}
	*x = protowire.DecodeZigZag(val)
}

// index visits a back-reference into an interning table, using -1 to
// mean null.
func (v *visitor) index(x *int) {
	var z int64
	if v.isW {
		z = int64(*x)
	}
	v.zigzag(&z)
	if !v.isW {
		*x = int(z)
	}
}

// deltaIndex visits x as a zigzag-varint delta against *prev (x-*prev on
// write, *prev+delta on read), then updates *prev to x. Used for tables
// whose records are monotone-adjacent, such as the SubPath table's
// (name_index, parent_index) pairs.
func (v *visitor) deltaIndex(x *int, prev *int) {
	d := int64(*x - *prev)
	v.zigzag(&d)
	if !v.isW {
		*x = *prev + int(d)
	}
	*prev = *x
}

// fixed32 visits a little-endian 32-bit scalar.
func (v *visitor) fixed32(x *uint32) {
	if v.err != nil {
		return
	}
	if v.isW {
		binary.LittleEndian.PutUint32(v.scratch[:4], *x)
		_, err := v.write.Write(v.scratch[:4])
		v.fail(err)
		return
	}
	if _, err := io.ReadFull(v.read, v.scratch[:4]); err != nil {
		v.fail(err)
		return
	}
	*x = binary.LittleEndian.Uint32(v.scratch[:4])
}

// fixed64 visits a little-endian 64-bit scalar, used for the
// distributed-sample weight (a float64, bit-cast by the caller).
func (v *visitor) fixed64(x *uint64) {
	if v.err != nil {
		return
	}
	if v.isW {
		binary.LittleEndian.PutUint64(v.scratch[:8], *x)
		_, err := v.write.Write(v.scratch[:8])
		v.fail(err)
		return
	}
	if _, err := io.ReadFull(v.read, v.scratch[:8]); err != nil {
		v.fail(err)
		return
	}
	*x = binary.LittleEndian.Uint64(v.scratch[:8])
}

// bytes visits a length-prefixed byte string.
func (v *visitor) bytes(x *[]byte) {
	if v.err != nil {
		return
	}
	if v.isW {
		n := uint64(len(*x))
		v.varint(&n)
		if v.err != nil {
			return
		}
		_, err := v.write.Write(*x)
		v.fail(err)
		return
	}
	n, err := readVarint(v.read)
	if err != nil {
		v.fail(err)
		return
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(v.read, buf); err != nil {
		v.fail(err)
		return
	}
	*x = buf
}

// str visits a length-prefixed UTF-8 string.
func (v *visitor) str(x *string) {
	if v.err != nil {
		return
	}
	if v.isW {
		b := []byte(*x)
		v.bytes(&b)
		return
	}
	var b []byte
	v.bytes(&b)
	if v.err == nil {
		*x = string(b)
	}
}

// boolean visits a single byte, 0 or 1.
func (v *visitor) boolean(x *bool) {
	if v.err != nil {
		return
	}
	if v.isW {
		b := byte(0)
		if *x {
			b = 1
		}
		_, err := v.write.Write([]byte{b})
		v.fail(err)
		return
	}
	var b [1]byte
	if _, err := io.ReadFull(v.read, b[:]); err != nil {
		v.fail(err)
		return
	}
	*x = b[0] != 0
}

func readVarint(r io.Reader) (uint64, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		buf = append(buf, b[0])
		if b[0]&0x80 == 0 {
			break
		}
	}
	val, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return val, nil
}
