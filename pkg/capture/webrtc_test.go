package capture

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSplitNALs(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
		want   [][]byte
	}{
		{
			name: "mixed start codes",
			stream: []byte{
				0, 0, 0, 1, 0x67, 0xAA, // SPS, 4 byte start code
				0, 0, 1, 0x68, 0xBB, // PPS, 3 byte start code
				0, 0, 0, 1, 0x65, 0x01, 0x02, // IDR
			},
			want: [][]byte{{0x67, 0xAA}, {0x68, 0xBB}, {0x65, 0x01, 0x02}},
		},
		{
			name:   "three byte start codes only",
			stream: []byte{0, 0, 1, 0x41, 0x01, 0, 0, 1, 0x41, 0x02},
			want:   [][]byte{{0x41, 0x01}, {0x41, 0x02}},
		},
		{
			name:   "leading bytes before the first start code",
			stream: []byte{0xDE, 0xAD, 0, 0, 0, 1, 0x65, 0x10},
			want:   [][]byte{{0x65, 0x10}},
		},
		{
			name:   "trailing start code",
			stream: []byte{0, 0, 0, 1, 0x41, 0x03, 0, 0, 0, 1},
			want:   [][]byte{{0x41, 0x03}},
		},
		{
			name:   "no start code",
			stream: []byte{1, 2, 3},
		},
		{
			name: "empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, splitNALs(tc.stream)); diff != "" {
				t.Errorf("splitNALs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendAccessUnit_GOP(t *testing.T) {
	sps := []byte{0, 0, 0, 1, 0x67, 0xAA}
	pps := []byte{0, 0, 0, 1, 0x68, 0xBB}
	idr := []byte{0, 0, 0, 1, 0x65, 0x10}
	p1 := []byte{0, 0, 0, 1, 0x41, 0x01}
	p2 := []byte{0, 0, 1, 0x41, 0x02}

	cat := func(parts ...[]byte) []byte {
		var out []byte
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}

	s := &WebRTCSource{}

	s.appendAccessUnit(p1)
	assert.Zero(t, s.gop.Len(), "P-frames before the first keyframe are dropped")

	s.appendAccessUnit(cat(sps, pps))
	assert.Zero(t, s.gop.Len(), "parameter sets alone do not start a GOP")

	s.appendAccessUnit(idr)
	assert.Equal(t, cat(sps, pps, idr), s.gop.Bytes(), "keyframe is prefixed with the stored SPS/PPS")

	s.appendAccessUnit(p2)
	assert.Equal(t, cat(sps, pps, idr, p2), s.gop.Bytes())

	// An IDR resets the buffer; in-band parameter sets replace the stored ones.
	sps2 := []byte{0, 0, 0, 1, 0x67, 0xCC}
	s.appendAccessUnit(cat(sps2, idr))
	assert.Equal(t, cat(sps2, pps, sps2, idr), s.gop.Bytes())
}
