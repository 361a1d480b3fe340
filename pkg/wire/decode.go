package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrProtocol is wrapped by every decode error: a malformed body is a
// WorkerProtocolError per the error-handling design, fatal to the run.
var ErrProtocol = fmt.Errorf("wire: protocol error")

func consumeString(b []byte) (string, []byte, error) {
	n, m := protowire.ConsumeVarint(b)
	if m < 0 {
		return "", nil, ErrProtocol
	}
	b = b[m:]
	if uint64(len(b)) < n {
		return "", nil, ErrProtocol
	}
	return string(b[:n]), b[n:], nil
}

func consumeVarint(b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, ErrProtocol
	}
	return v, b[n:], nil
}

func consumeZigzag(b []byte) (int64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, ErrProtocol
	}
	return protowire.DecodeZigZag(v), b[n:], nil
}

// Decode parses the body of a frame of the given type into its typed
// message value.
func Decode(t Type, body []byte) (any, error) {
	switch t {
	case TypeStart:
		var m Start
		total, rest, err := consumeVarint(body)
		if err != nil {
			return nil, err
		}
		m.TotalSize = total
		if len(rest) < 16 {
			return nil, ErrProtocol
		}
		copy(m.FSID[:], rest[:16])
		rest = rest[16:]
		count, rest2, err := consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		rest = rest2
		for i := uint64(0); i < count; i++ {
			var d DeviceDesc
			d.DevID, rest, err = consumeVarint(rest)
			if err != nil {
				return nil, err
			}
			d.TotalBytes, rest, err = consumeVarint(rest)
			if err != nil {
				return nil, err
			}
			d.Path, rest, err = consumeString(rest)
			if err != nil {
				return nil, err
			}
			m.Devices = append(m.Devices, d)
		}
		return &m, nil

	case TypeNewRoot:
		var m NewRoot
		rest := body
		var err error
		m.RootID, rest, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		m.ParentRootID, rest, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		m.Name, rest, err = consumeString(rest)
		if err != nil {
			return nil, err
		}
		m.Generation, rest, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		m.OTimeUnix, rest, err = consumeZigzag(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) < 1 {
			return nil, ErrProtocol
		}
		m.Readonly = rest[0] != 0
		return &m, nil

	case TypeResultStart:
		var m ResultStart
		rest := body
		var err error
		m.ChunkFlags, rest, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		m.Logical, rest, err = consumeZigzag(rest)
		if err != nil {
			return nil, err
		}
		m.DevID, rest, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		m.Physical, rest, err = consumeZigzag(rest)
		if err != nil {
			return nil, err
		}
		m.SampleIndex, _, err = consumeVarint(rest)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeResultIgnoringOffset:
		return &ResultIgnoringOffset{}, nil

	case TypeResultInodeStart:
		var m ResultInodeStart
		var err error
		m.RootID, _, err = consumeVarint(body)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeResultInodeError:
		var m ResultInodeError
		errnoV, rest, err := consumeZigzag(body)
		if err != nil {
			return nil, err
		}
		m.Errno = int32(errnoV)
		m.Msg, _, err = consumeString(rest)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeResultInodeEnd:
		return &ResultInodeEnd{}, nil

	case TypeResult:
		var m Result
		var err error
		m.Path, _, err = consumeString(body)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeResultError:
		var m ResultError
		var err error
		m.Msg, _, err = consumeString(body)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeResultEnd:
		var m ResultEnd
		var err error
		m.DurationHnsecs, _, err = consumeVarint(body)
		if err != nil {
			return nil, err
		}
		return &m, nil

	case TypeFatalError:
		var m FatalError
		var err error
		m.Msg, _, err = consumeString(body)
		if err != nil {
			return nil, err
		}
		return &m, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrProtocol, t)
	}
}
