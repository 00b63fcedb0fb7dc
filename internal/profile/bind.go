package profile

import (
	"fmt"
	"strings"

	"github.com/srg/nanopressure/internal/device"
)

// ScanFields are needed for a live scan.
func ScanFields() []Field {
	return []Field{PressureValue}
}

// DownloadFields are needed for a history download.
func DownloadFields() []Field {
	return []Field{PressureHistory, DeviceTime, PressureCounts}
}

// IntervalFields are needed to change the sampling interval.
func IntervalFields() []Field {
	return []Field{Interval, PressureCounts}
}

// Unresolved describes one required field that could not be bound.
type Unresolved struct {
	Field  Field
	ID     CharacteristicID
	Reason string
}

// MissingError lists every required field Bind could not resolve.
type MissingError struct {
	Fields []Unresolved
}

func (e *MissingError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, u := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s: %s)", u.Field, u.ID, u.Reason))
	}
	return "required characteristics unavailable: " + strings.Join(parts, ", ")
}

// Characteristics holds the characteristics bound for a session.
type Characteristics struct {
	byField map[Field]device.Characteristic
}

// Get returns the characteristic bound to f, or nil.
func (c *Characteristics) Get(f Field) device.Characteristic {
	return c.byField[f]
}

// Has reports whether f was bound.
func (c *Characteristics) Has(f Field) bool {
	_, ok := c.byField[f]
	return ok
}

// checkProperties returns why c cannot serve f, or "" when it can.
func checkProperties(f Field, c device.Characteristic) string {
	props := c.GetProperties()
	switch f {
	case PressureValue:
		if !device.Has(props.Notify()) && !device.Has(props.Indicate()) {
			return "no notify property"
		}
	case Interval:
		if !device.Has(props.Write()) {
			return "no write-with-response property"
		}
		if !device.Has(props.Read()) {
			return "no read property"
		}
	default:
		if !device.Has(props.Read()) {
			return "no read property"
		}
	}
	return ""
}

// Bind resolves every entry of m against the discovered services of conn.
// Fields that resolve and pass their property check are bound. Any field in
// required that does not is reported, all at once, in a *MissingError.
func Bind(conn device.Connection, m *CharacteristicMap, required ...Field) (*Characteristics, error) {
	var all []device.Characteristic
	for _, svc := range conn.Services() {
		all = append(all, svc.GetCharacteristics()...)
	}

	bound := &Characteristics{byField: make(map[Field]device.Characteristic)}
	reasons := make(map[Field]string)

	m.Each(func(f Field, id CharacteristicID) {
		var found device.Characteristic
		for _, c := range all {
			if id.Matches(c) {
				found = c
				break
			}
		}
		if found == nil {
			reasons[f] = "not found"
			return
		}
		if reason := checkProperties(f, found); reason != "" {
			reasons[f] = reason
			return
		}
		bound.byField[f] = found
	})

	missing := &MissingError{}
	for _, f := range required {
		if bound.Has(f) {
			continue
		}
		id, ok := m.Get(f)
		reason := reasons[f]
		if !ok {
			reason = "not in profile"
		}
		missing.Fields = append(missing.Fields, Unresolved{Field: f, ID: id, Reason: reason})
	}
	if len(missing.Fields) > 0 {
		return nil, missing
	}
	return bound, nil
}
