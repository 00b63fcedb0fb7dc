package testutils

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// JSONAssertOptions controls JSON line comparison.
type JSONAssertOptions struct {
	// FloatPrecision rounds numbers to this many decimals before comparing. Negative disables rounding.
	FloatPrecision  int  `default:"2"`
	IgnoreExtraKeys bool `default:"false"`
}

// JSONOption configures a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents or JSON-lines streams record by record.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares two JSON objects.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	ja.t.Helper()
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// AssertLines compares two JSON-lines streams. Blank lines are ignored.
func (ja *JSONAsserter) AssertLines(actual, expected string) bool {
	ja.t.Helper()
	actualLines := nonEmptyLines(actual)
	expectedLines := nonEmptyLines(expected)
	if len(actualLines) != len(expectedLines) {
		ja.t.Errorf("JSON lines count mismatch: expected %d, got %d\nactual:\n%s", len(expectedLines), len(actualLines), actual)
		return false
	}

	ok := true
	for i := range expectedLines {
		if diff := ja.diff(actualLines[i], expectedLines[i]); diff != "" {
			ja.t.Errorf("JSON line %d mismatch:\n%s", i+1, diff)
			ok = false
		}
	}
	return ok
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual map[string]interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	if ja.options.FloatPrecision >= 0 {
		roundNumbers(expected, ja.options.FloatPrecision)
		roundNumbers(actual, ja.options.FloatPrecision)
	}
	if ja.options.IgnoreExtraKeys {
		for k := range actual {
			if _, ok := expected[k]; !ok {
				delete(actual, k)
			}
		}
	}

	d := gojsondiff.New().CompareObjects(expected, actual)
	if !d.Modified() {
		return ""
	}
	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(d)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	return out
}

func roundNumbers(obj map[string]interface{}, precision int) {
	scale := math.Pow(10, float64(precision))
	for k, v := range obj {
		switch val := v.(type) {
		case float64:
			obj[k] = math.Round(val*scale) / scale
		case map[string]interface{}:
			roundNumbers(val, precision)
		}
	}
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func WithFloatPrecision(decimals int) JSONOption {
	return func(opts *JSONAssertOptions) { opts.FloatPrecision = decimals }
}

func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}
