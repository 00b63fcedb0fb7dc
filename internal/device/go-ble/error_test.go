package goble

import (
	"errors"
	"testing"

	"github.com/srg/nanopressure/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{name: "central manager powered off", msg: "central manager has invalid state: have=4 want=5", want: device.ErrBluetoothOff},
		{name: "bluetooth off", msg: "Bluetooth is turned off", want: device.ErrBluetoothOff},
		{name: "not connected", msg: "device not connected", want: device.ErrNotConnected},
		{name: "link dropped", msg: "peripheral disconnected", want: device.ErrTransportDisconnected},
		{name: "already connected", msg: "device already connected", want: device.ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := errors.New(tt.msg)
			err := NormalizeError(src)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	other := errors.New("att: attribute not found")
	assert.Same(t, other, NormalizeError(other))
	assert.NoError(t, NormalizeError(nil))
}
