// Package codec implements the versioned binary export/import format:
// a single visitor parameterized by read/write direction so encoder and
// decoder always walk the same sequence of fields, guaranteeing format
// symmetry.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Magic is the fixed 8-byte header every export file begins with.
var Magic = [8]byte{'B', 'T', 'D', 'U', 0, 'B', 'I', 'N'}

// FormatVersion is the current writer's format version. Readers accept
// any version they have a registered visitor for; this package only
// implements the current one.
const FormatVersion = 2

// Flag bits packed into the header's 32-bit flags word.
const (
	FlagExpert   uint32 = 1 << 0
	FlagPhysical uint32 = 1 << 1
)

// ErrBadMagic is returned when the file does not begin with Magic.
var ErrBadMagic = errors.New("codec: bad magic")

// ErrUnsupportedVersion is returned for a format_version this package
// has no visitor for.
var ErrUnsupportedVersion = errors.New("codec: unsupported format version")

// Header is the fixed-layout prefix of every export file.
type Header struct {
	FormatVersion uint32
	Flags         uint32
	FSID          uuid.UUID
	TotalSize     uint64
	FSPath        string
}

// WriteHeader writes the fixed 8-byte magic, version, flags, and
// (v2+) UUID fields, then the total_size varint and the length-prefixed
// filesystem path, in that exact field order.
func WriteHeader(w io.Writer, h Header) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], h.FormatVersion)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:], h.Flags)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	fsid := h.FSID
	if _, err := w.Write(fsid[:]); err != nil {
		return err
	}
	v := newVisitor(w, nil, true)
	v.varint(&h.TotalSize)
	v.str(&h.FSPath)
	return v.err
}

// ReadHeader parses the fixed prefix and returns the header, leaving r
// positioned right after it, ready to read the tables that follow.
func ReadHeader(r io.Reader) (Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, err
	}
	if magic != Magic {
		return Header{}, ErrBadMagic
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	version := binary.LittleEndian.Uint32(buf[:])
	if version != FormatVersion {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	var h Header
	h.FormatVersion = version
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	h.Flags = binary.LittleEndian.Uint32(buf[:])
	if _, err := io.ReadFull(r, h.FSID[:]); err != nil {
		return Header{}, err
	}
	v := newVisitor(nil, r, false)
	v.varint(&h.TotalSize)
	v.str(&h.FSPath)
	return h, v.err
}
