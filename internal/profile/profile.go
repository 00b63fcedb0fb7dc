// Package profile maps the pressure sensor's logical fields to GATT
// characteristics and binds them on a live connection.
//
// The firmware table is the default. A YAML profile can replace it for
// firmware revisions that move handles around:
//
//	characteristics:
//	  pressureValue: 11
//	  interval: "2a21"
//
// UUIDs made only of digits must be quoted, otherwise YAML reads them as handles.
package profile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/srg/nanopressure/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Field names a logical characteristic of the sensor.
type Field string

const (
	PressureValue   Field = "pressureValue"
	Interval        Field = "interval"
	PressureHistory Field = "pressureHistory"
	DeviceTime      Field = "deviceTime"
	PressureCounts  Field = "pressureCounts"
)

// Fields lists every known field in table order.
var Fields = []Field{PressureValue, Interval, PressureHistory, DeviceTime, PressureCounts}

func knownField(f Field) bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// CharacteristicID identifies a characteristic either by GATT handle or by UUID.
// Exactly one of Handle and UUID is set.
type CharacteristicID struct {
	Handle uint16
	UUID   string
}

// HandleID returns an ID matching a declaration or value handle.
func HandleID(h uint16) CharacteristicID {
	return CharacteristicID{Handle: h}
}

// UUIDID returns an ID matching a characteristic UUID in any notation.
func UUIDID(uuid string) CharacteristicID {
	return CharacteristicID{UUID: device.NormalizeUUID(uuid)}
}

func (id CharacteristicID) String() string {
	if id.UUID != "" {
		return "uuid " + id.UUID
	}
	return fmt.Sprintf("handle %d", id.Handle)
}

// Matches reports whether c is the characteristic this ID refers to.
func (id CharacteristicID) Matches(c device.CharacteristicInfo) bool {
	if id.UUID != "" {
		return device.NormalizeUUID(c.UUID()) == id.UUID
	}
	return c.Handle() == id.Handle || c.ValueHandle() == id.Handle
}

// UnmarshalYAML accepts an integer handle or a UUID string.
func (id *CharacteristicID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: characteristic id must be a handle or a UUID", node.Line)
	}
	if node.ShortTag() == "!!int" {
		h, err := strconv.ParseUint(node.Value, 0, 16)
		if err != nil {
			return fmt.Errorf("line %d: invalid handle %q: %w", node.Line, node.Value, err)
		}
		*id = HandleID(uint16(h))
		return nil
	}
	uuid := device.NormalizeUUID(node.Value)
	if uuid == "" || strings.Trim(uuid, "0123456789abcdef") != "" {
		return fmt.Errorf("line %d: invalid characteristic UUID %q", node.Line, node.Value)
	}
	*id = CharacteristicID{UUID: uuid}
	return nil
}

// CharacteristicMap is an insertion-ordered, read-only field table.
type CharacteristicMap struct {
	entries *orderedmap.OrderedMap[Field, CharacteristicID]
}

func newMap() *CharacteristicMap {
	return &CharacteristicMap{entries: orderedmap.New[Field, CharacteristicID]()}
}

// Default returns the handle table of the stock firmware.
func Default() *CharacteristicMap {
	m := newMap()
	m.entries.Set(PressureValue, HandleID(11))
	m.entries.Set(Interval, HandleID(16))
	m.entries.Set(PressureHistory, HandleID(20))
	m.entries.Set(DeviceTime, HandleID(23))
	m.entries.Set(PressureCounts, HandleID(26))
	return m
}

// Get returns the ID bound to field.
func (m *CharacteristicMap) Get(f Field) (CharacteristicID, bool) {
	return m.entries.Get(f)
}

// Len returns the number of fields in the table.
func (m *CharacteristicMap) Len() int {
	return m.entries.Len()
}

// Each calls fn for every entry in table order.
func (m *CharacteristicMap) Each(fn func(Field, CharacteristicID)) {
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

type profileFile struct {
	Characteristics map[string]CharacteristicID `yaml:"characteristics"`
}

// Parse decodes a YAML profile. Fields it omits keep their default IDs.
func Parse(data []byte) (*CharacteristicMap, error) {
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	for name := range pf.Characteristics {
		if !knownField(Field(name)) {
			return nil, fmt.Errorf("unknown characteristic field %q in profile", name)
		}
	}

	m := newMap()
	Default().Each(func(f Field, id CharacteristicID) {
		if override, ok := pf.Characteristics[string(f)]; ok {
			id = override
		}
		m.entries.Set(f, id)
	})
	return m, nil
}

// Load reads a YAML profile from path.
func Load(path string) (*CharacteristicMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
