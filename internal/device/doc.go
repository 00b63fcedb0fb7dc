// Package device defines the BLE abstractions the pressure tool is built on.
//
// It holds:
//   - Device, connection, service and characteristic interfaces
//   - The error taxonomy shared by discovery, connection and GATT operations
//   - UUID and address normalization helpers
//
// The go-ble backed implementation lives in the go-ble subpackage.
package device
