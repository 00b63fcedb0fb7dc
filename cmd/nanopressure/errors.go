package main

import (
	"errors"

	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/pressure"
	"github.com/srg/nanopressure/internal/profile"
)

// FormatUserError renders err for the terminal, adding a hint for the
// failures an operator can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	var missing *profile.MissingError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return msg + "\nHint: turn Bluetooth on and make sure this user may access the adapter"
	case errors.Is(err, device.ErrDeviceNotFound):
		return msg + "\nHint: check --addr and that the sensor is powered and advertising"
	case errors.Is(err, device.ErrNoDevicesFound):
		// message already points at --rssi
		return msg
	case errors.Is(err, device.ErrConnectionTimeout):
		return msg + "\nHint: move closer or raise --timeout"
	case errors.Is(err, device.ErrConnectionFailed):
		return msg + "\nHint: the sensor may already be connected to another host"
	case errors.Is(err, device.ErrTransportDisconnected):
		return msg + "\nHint: the sensor went out of range or powered off"
	case errors.Is(err, device.ErrWriteNotAcknowledged):
		return msg + "\nHint: the sensor did not confirm the new interval; it keeps the old one"
	case errors.As(err, &missing), errors.Is(err, pressure.ErrMalformedPayload):
		return msg + "\nHint: the firmware does not match the characteristic map, pass --profile"
	}
	return msg
}
