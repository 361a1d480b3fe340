package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, math.MaxUint32, math.MaxUint64}
	for _, v := range values {
		enc := protowire.AppendVarint(nil, v)
		assert.LessOrEqual(t, len(enc), 10)
		got, n := protowire.ConsumeVarint(enc)
		require.Greater(t, n, 0)
		assert.Equal(t, v, got)
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	values := []int64{0, -1, 1, -2, math.MinInt64, math.MaxInt64}
	for _, v := range values {
		enc := protowire.AppendVarint(nil, protowire.EncodeZigZag(v))
		got, n := protowire.ConsumeVarint(enc)
		require.Greater(t, n, 0)
		assert.Equal(t, v, protowire.DecodeZigZag(got))
	}
}

func TestFramingRoundTripDripFed(t *testing.T) {
	msgs := []any{
		&Start{TotalSize: 123456, FSID: [16]byte{1, 2, 3}, Devices: []DeviceDesc{{DevID: 1, TotalBytes: 999, Path: "/dev/sda1"}}},
		&NewRoot{RootID: 5, ParentRootID: 0, Name: "@root", Generation: 7, OTimeUnix: 1700000000, Readonly: false},
		&ResultStart{ChunkFlags: 1, Logical: 42, DevID: 1, Physical: -1, SampleIndex: 3},
		&ResultIgnoringOffset{},
		&ResultInodeStart{RootID: 5},
		&Result{Path: "a/b/c"},
		&ResultInodeError{Errno: 2, Msg: "ENOENT"},
		&ResultInodeEnd{},
		&ResultError{Msg: "boom"},
		&ResultEnd{DurationHnsecs: 10000},
		&FatalError{Msg: "disk gone"},
	}

	for _, m := range msgs {
		encoded := Encode(m)
		var p Parser
		var got Decoded
		for i := 0; i < len(encoded); i++ {
			p.Feed(encoded[i : i+1])
			d, needed, err := p.Next()
			require.NoError(t, err)
			if needed == 0 && d.Message != nil {
				got = d
				break
			}
		}
		require.NotNil(t, got.Message, "expected a decoded message for %T", m)
		assert.Equal(t, m, got.Message)
		assert.Equal(t, 0, p.Pending())
	}
}

func TestParserReportsBytesNeeded(t *testing.T) {
	encoded := Encode(&Result{Path: "hello"})
	var p Parser
	p.Feed(encoded[:2])
	_, needed, err := p.Next()
	require.NoError(t, err)
	assert.Greater(t, needed, 0)

	p.Feed(encoded[2:])
	d, needed, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, needed)
	assert.Equal(t, &Result{Path: "hello"}, d.Message)
}
