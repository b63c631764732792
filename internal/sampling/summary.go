package sampling

import (
	"gonum.org/v1/gonum/stat"
)

// FieldSummary is the sample mean and standard deviation of one field.
type FieldSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Column extracts one field from samples in order.
func Column(samples []Sample, field string) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if v, ok := s.Value(field); ok {
			out = append(out, v)
		}
	}
	return out
}

// Summary reports per-field statistics. Fewer than two samples give a zero
// standard deviation.
func Summary(samples []Sample) map[string]FieldSummary {
	out := make(map[string]FieldSummary, len(Fields))
	if len(samples) == 0 {
		return out
	}
	for _, field := range Fields {
		x := Column(samples, field)
		mean, std := stat.MeanStdDev(x, nil)
		if len(x) < 2 {
			std = 0
		}
		lo, hi := x[0], x[0]
		for _, v := range x[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		out[field] = FieldSummary{Mean: mean, StdDev: std, Min: lo, Max: hi}
	}
	return out
}
