// Package pressure implements the sensor protocol: wire codecs, the interval
// configurator, the live scan engine, the history drain engine and the
// clock reconciler.
package pressure

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/srg/nanopressure/internal/device"
)

// ErrMalformedPayload is returned when a characteristic value does not match its wire format.
var ErrMalformedPayload = errors.New("malformed characteristic payload")

// PayloadError describes a payload of the wrong length.
type PayloadError struct {
	Field string
	Want  int
	Got   int
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s: want %d bytes, got %d", ErrMalformedPayload, e.Field, e.Want, e.Got)
}

func (e *PayloadError) Unwrap() error {
	return ErrMalformedPayload
}

// Wire sizes, all little-endian.
const (
	ValueSize  = 4 // f32 pressure, u32 interval, u32 device time, u32 count
	RecordSize = 8 // f32 pressure + u32 relative ms
)

func checkSize(field string, data []byte, want int) error {
	if len(data) != want {
		return &PayloadError{Field: field, Want: want, Got: len(data)}
	}
	return nil
}

// DecodePressure decodes a pressureValue notification in Pa.
func DecodePressure(data []byte) (float32, error) {
	if err := checkSize("pressureValue", data, ValueSize); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
}

// DecodeUint32 decodes a u32 characteristic value. field names it in errors.
func DecodeUint32(field string, data []byte) (uint32, error) {
	if err := checkSize(field, data, ValueSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// EncodeUint32 encodes v as 4 little-endian bytes.
func EncodeUint32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, ValueSize), v)
}

// DecodeRecord decodes one pressureHistory record.
func DecodeRecord(data []byte) (Sample, error) {
	if err := checkSize("pressureHistory", data, RecordSize); err != nil {
		return Sample{}, err
	}
	return Sample{
		Pressure:   math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
		RelativeMs: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// EncodeRecord is the inverse of DecodeRecord.
func EncodeRecord(pressure float32, relativeMs uint32) []byte {
	b := make([]byte, 0, RecordSize)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(pressure))
	return binary.LittleEndian.AppendUint32(b, relativeMs)
}

// EncodePressure is the inverse of DecodePressure.
func EncodePressure(pressure float32) []byte {
	return EncodeUint32(math.Float32bits(pressure))
}

// readUint32 reads and decodes a u32 characteristic.
func readUint32(c device.Characteristic, field string, timeout time.Duration) (uint32, error) {
	data, err := c.Read(timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return DecodeUint32(field, data)
}
