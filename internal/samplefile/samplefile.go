// Package samplefile persists drained samples.
package samplefile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/srg/nanopressure/internal/pressure"
)

// Format selects the on-disk layout.
type Format string

const (
	// Text writes "pressure timestamp" per line with two decimals.
	Text Format = "text"
	// JSONLines writes one {"pressure":..,"timestamp":..} object per line.
	JSONLines Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case Text, JSONLines:
		return Format(s), nil
	case "":
		return Text, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want %s or %s)", s, Text, JSONLines)
	}
}

// Writer appends to or overwrites one file.
type Writer struct {
	Path      string
	Overwrite bool
	Format    Format
}

type record struct {
	Pressure  float64 `json:"pressure"`
	Timestamp float64 `json:"timestamp"`
}

// Write persists every sample of set and returns how many were written.
func (w *Writer) Write(set *pressure.SampleSet) (int, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if w.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(w.Path, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", w.Path, err)
	}

	n, err := Encode(f, set, w.Format)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", w.Path, cerr)
	}
	return n, err
}

// Encode writes set to out in the given format.
func Encode(out io.Writer, set *pressure.SampleSet, format Format) (int, error) {
	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)

	n := 0
	for _, s := range set.Samples() {
		var err error
		switch format {
		case JSONLines:
			err = enc.Encode(record{Pressure: round2(float64(s.Pressure)), Timestamp: round2(s.Timestamp)})
		case Text, "":
			_, err = fmt.Fprintf(bw, "%.2f %.2f\n", s.Pressure, s.Timestamp)
		default:
			return n, fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return n, fmt.Errorf("failed to write sample %d: %w", n+1, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush samples: %w", err)
	}
	return n, nil
}

// round2 matches the two-decimal precision of the text format.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
