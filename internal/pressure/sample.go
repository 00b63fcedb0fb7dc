package pressure

import "errors"

// ErrAlreadyReconciled is returned when a sample set is reconciled twice.
var ErrAlreadyReconciled = errors.New("sample set already reconciled")

// Sample is one drained history record.
// Pressure and RelativeMs come from the device and never change.
// Timestamp is epoch seconds, set once by Reconcile.
type Sample struct {
	Pressure   float32
	RelativeMs uint32
	Timestamp  float64
}

// SampleSet accumulates samples in device read order.
type SampleSet struct {
	samples    []Sample
	reconciled bool
}

// NewSampleSet returns an empty set with room for n samples.
func NewSampleSet(n int) *SampleSet {
	return &SampleSet{samples: make([]Sample, 0, n)}
}

func (s *SampleSet) Append(sample Sample) {
	s.samples = append(s.samples, sample)
}

func (s *SampleSet) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the samples in read order.
func (s *SampleSet) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Reconciled reports whether timestamps are absolute.
func (s *SampleSet) Reconciled() bool {
	return s.reconciled
}
