package wire

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"
)

// Parser incrementally decodes frames from a byte stream that may
// deliver arbitrarily small chunks (a non-blocking pipe read). It never
// destructively consumes a partial frame: Feed only appends, and
// Next only advances past bytes that form one complete frame.
type Parser struct {
	buf []byte
}

// Feed appends newly read bytes to the parser's pending buffer.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Decoded is one fully parsed frame: its type and typed message value.
type Decoded struct {
	Type    Type
	Message any
}

// Next attempts to decode one complete frame from the buffered bytes.
// On success it returns the decoded frame, 0 and a nil error, and
// advances past the consumed bytes. If not enough bytes are buffered
// yet, it returns the zero Decoded, the number of additional bytes
// needed before the next attempt can succeed, and a nil error — the
// "bytes needed" contract the caller uses to size its next non-blocking
// read. A malformed frame yields a non-nil error.
func (p *Parser) Next() (Decoded, int, error) {
	if len(p.buf) < headerSize {
		return Decoded{}, headerSize - len(p.buf), nil
	}
	total := int(binary.LittleEndian.Uint32(p.buf[:headerSize]))
	if total < headerSize {
		return Decoded{}, 0, ErrProtocol
	}
	if len(p.buf) < total {
		return Decoded{}, total - len(p.buf), nil
	}

	body := p.buf[headerSize:total]
	typ, n := protowire.ConsumeVarint(body)
	if n < 0 {
		return Decoded{}, 0, ErrProtocol
	}
	msg, err := Decode(Type(typ), body[n:])
	if err != nil {
		return Decoded{}, 0, err
	}

	p.buf = p.buf[total:]
	return Decoded{Type: Type(typ), Message: msg}, 0, nil
}

// Pending returns the number of unconsumed bytes currently buffered.
func (p *Parser) Pending() int {
	return len(p.buf)
}
