package pressure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePressure(t *testing.T) {
	p, err := DecodePressure([]byte{0x80, 0xe6, 0xc5, 0x47})
	require.NoError(t, err)
	assert.Equal(t, float32(101325.0), p)

	p, err = DecodePressure(EncodePressure(99000.5))
	require.NoError(t, err)
	assert.Equal(t, float32(99000.5), p)
}

func TestDecodeRecord(t *testing.T) {
	s, err := DecodeRecord([]byte{0x80, 0xe6, 0xc5, 0x47, 0xfa, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, Sample{Pressure: 101325.0, RelativeMs: 250}, s)
	assert.Equal(t, []byte{0x80, 0xe6, 0xc5, 0x47, 0xfa, 0x00, 0x00, 0x00}, EncodeRecord(101325.0, 250))
}

func TestDecodeUint32(t *testing.T) {
	v, err := DecodeUint32("pressureCounts", []byte{0x00, 0x40, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(16384), v)
	assert.Equal(t, []byte{0x05, 0, 0, 0}, EncodeUint32(5))
}

func TestDecode_WrongLength(t *testing.T) {
	tests := []struct {
		name   string
		decode func() error
		field  string
		want   int
		got    int
	}{
		{name: "pressure too short", decode: func() error { _, err := DecodePressure([]byte{1, 2}); return err }, field: "pressureValue", want: 4, got: 2},
		{name: "record too short", decode: func() error { _, err := DecodeRecord(make([]byte, 4)); return err }, field: "pressureHistory", want: 8, got: 4},
		{name: "count too long", decode: func() error { _, err := DecodeUint32("pressureCounts", make([]byte, 8)); return err }, field: "pressureCounts", want: 4, got: 8},
		{name: "empty time", decode: func() error { _, err := DecodeUint32("deviceTime", nil); return err }, field: "deviceTime", want: 4, got: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode()
			require.ErrorIs(t, err, ErrMalformedPayload)

			var perr *PayloadError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.field, perr.Field)
			assert.Equal(t, tt.want, perr.Want)
			assert.Equal(t, tt.got, perr.Got)
		})
	}
}
