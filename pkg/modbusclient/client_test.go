package modbusclient

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {

	var tests = []struct {
		name     string
		expected int
		given    []byte
	}{
		{
			name:     "8bit negative",
			expected: -28,
			given:    []byte{0xe4},
		},
		{
			name:     "16bit negative",
			expected: -28,
			given:    []byte{0xff, 0xe4},
		},
		{
			name:     "16bit postive",
			expected: 31,
			given:    []byte{0x00, 0x1f},
		},
		{
			name:     "large 32bit positive",
			expected: 514773,
			given:    []byte{0x00, 0x07, 0xda, 0xd5},
		},
		{
			name:     "32bit postive",
			expected: 31,
			given:    []byte{0x00, 0x00, 0x00, 0x1f},
		},
		{
			name:     "32bit negative",
			expected: -29,
			given:    []byte{0xff, 0xff, 0xff, 0xe3},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			actual := Decode(tt.given)
			if actual != tt.expected {
				t.Errorf("given(%#v): expected %d, actual %d", tt.given, tt.expected, actual)
			}
		})
	}

}

func TestFloat32(t *testing.T) {
	// 1.0 is 0x3f800000, low word first
	assert.Equal(t, []byte{0x00, 0x00, 0x3f, 0x80}, EncodeFloat32(1))
	assert.Equal(t, 1.0, DecodeFloat32([]byte{0x00, 0x00, 0x3f, 0x80}))

	for _, v := range []float64{0, -2500, 10240, 55.5} {
		assert.Equal(t, v, DecodeFloat32(EncodeFloat32(v)))
	}
	assert.True(t, math.IsNaN(DecodeFloat32([]byte{0x01})))
}

func TestDecodeBits(t *testing.T) {
	bits := DecodeBits([]byte{0x05, 0x80}, 16)
	assert.True(t, bits[0])
	assert.False(t, bits[1])
	assert.True(t, bits[2])
	assert.True(t, bits[15])
	assert.False(t, bits[14])

	// short response
	assert.Len(t, DecodeBits([]byte{0x01}, 12), 12)
}
