package hx711

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(v int32) uint32 {
	return uint32(v) & 0xFFFFFF
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	// Every representable value survives encode/decode except the four
	// flagged frames (the saturation boundaries, all-ones, and all-zero).
	flagged := map[int32]bool{
		-1 << 23:  true, // 0x800000
		1<<23 - 1: true, // 0x7FFFFF
		-1:        true, // 0xFFFFFF
		0:         true, // 0x000000
	}
	for x := int32(-1 << 23); x < 1<<23; x++ {
		got, err := decodeFrame(encodeFrame(x))
		if flagged[x] {
			if err == nil {
				t.Fatalf("decode(%#x): expected saturation error", encodeFrame(x))
			}
			continue
		}
		if err != nil {
			t.Fatalf("decode(%#x): unexpected error %v", encodeFrame(x), err)
		}
		if got != x {
			t.Fatalf("decode(encode(%d)) = %d", x, got)
		}
	}
}

func TestDecodeFrameSaturated(t *testing.T) {
	for _, raw := range []uint32{0x800000, 0x7FFFFF, 0xFFFFFF, 0x000000} {
		_, err := decodeFrame(raw)
		assert.ErrorIs(t, err, ErrSaturated, "frame %#x", raw)
	}
}

func TestDecodeFrameSign(t *testing.T) {
	v, err := decodeFrame(0xFFFFFE)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), v)

	v, err = decodeFrame(0x000001)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	v, err = decodeFrame(0x7FFFFE)
	require.NoError(t, err)
	assert.Equal(t, int32(1<<23-2), v)

	v, err = decodeFrame(0x800001)
	require.NoError(t, err)
	assert.Equal(t, int32(-(1<<23)+1), v)
}
