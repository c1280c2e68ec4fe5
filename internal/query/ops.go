package query

import (
	"math"
	"sort"
)

// paramSpec declares one operation parameter and its default.
type paramSpec struct {
	name string
	dflt float64
}

// OpSpec declares a named operation: its parameters and, depending on
// Reduce, either an in-place element-wise transform over one contiguous
// slice (a vector, or one row of a row-major matrix) or a reduction of the
// slice to a single value.
type OpSpec struct {
	Name   string
	Reduce bool
	params []paramSpec
	elt    func(values []float64, params map[string]float64)
	reduce func(values []float64, params map[string]float64) float64
}

func (s *OpSpec) defaultOf(name string) float64 {
	for _, p := range s.params {
		if p.name == name {
			return p.dflt
		}
	}
	return 0
}

func (s *OpSpec) hasParam(name string) bool {
	for _, p := range s.params {
		if p.name == name {
			return true
		}
	}
	return false
}

// Apply runs an element-wise operation in place on one contiguous slice.
func Apply(op Operation, values []float64) {
	operations[op.Name].elt(values, op.Params)
}

// ApplyReduce reduces one contiguous slice to a single value.
func ApplyReduce(op Operation, values []float64) float64 {
	return operations[op.Name].reduce(values, op.Params)
}

// operations is the closed registry keyed by name. Element-wise and
// reduction operations share a namespace; the Reduce flag separates them at
// parse time.
var operations = map[string]*OpSpec{
	"abs": {
		Name: "abs",
		elt: func(values []float64, _ map[string]float64) {
			for i, v := range values {
				values[i] = math.Abs(v)
			}
		},
	},
	"sqrt": {
		Name: "sqrt",
		elt: func(values []float64, _ map[string]float64) {
			for i, v := range values {
				values[i] = math.Sqrt(v)
			}
		},
	},
	"round": {
		Name: "round",
		elt: func(values []float64, _ map[string]float64) {
			for i, v := range values {
				values[i] = math.Round(v)
			}
		},
	},
	"log": {
		Name:   "log",
		params: []paramSpec{{"base", math.E}, {"eps", 0}},
		elt: func(values []float64, params map[string]float64) {
			base := math.Log(params["base"])
			eps := params["eps"]
			for i, v := range values {
				values[i] = math.Log(v+eps) / base
			}
		},
	},
	"clamp": {
		Name:   "clamp",
		params: []paramSpec{{"min", math.Inf(-1)}, {"max", math.Inf(1)}},
		elt: func(values []float64, params map[string]float64) {
			lo, hi := params["min"], params["max"]
			for i, v := range values {
				values[i] = math.Min(math.Max(v, lo), hi)
			}
		},
	},
	// fraction divides each value by the total of its slice, so matrix rows
	// become row fractions and vectors become fractions of the whole.
	"fraction": {
		Name: "fraction",
		elt: func(values []float64, _ map[string]float64) {
			var total float64
			for _, v := range values {
				total += v
			}
			if total == 0 {
				return
			}
			for i, v := range values {
				values[i] = v / total
			}
		},
	},
	// significant zeroes a slice whose largest magnitude is below high, and
	// otherwise zeroes the entries below low.
	"significant": {
		Name:   "significant",
		params: []paramSpec{{"high", 8}, {"low", 2}},
		elt: func(values []float64, params map[string]float64) {
			high, low := params["high"], params["low"]
			var top float64
			for _, v := range values {
				top = math.Max(top, math.Abs(v))
			}
			for i, v := range values {
				if top < high || math.Abs(v) < low {
					values[i] = 0
				}
			}
		},
	},

	"sum": {
		Name:   "sum",
		Reduce: true,
		reduce: func(values []float64, _ map[string]float64) float64 {
			var total float64
			for _, v := range values {
				total += v
			}
			return total
		},
	},
	"mean": {
		Name:   "mean",
		Reduce: true,
		reduce: func(values []float64, _ map[string]float64) float64 {
			if len(values) == 0 {
				return math.NaN()
			}
			var total float64
			for _, v := range values {
				total += v
			}
			return total / float64(len(values))
		},
	},
	"min": {
		Name:   "min",
		Reduce: true,
		reduce: func(values []float64, _ map[string]float64) float64 {
			if len(values) == 0 {
				return math.NaN()
			}
			lo := values[0]
			for _, v := range values[1:] {
				lo = math.Min(lo, v)
			}
			return lo
		},
	},
	"max": {
		Name:   "max",
		Reduce: true,
		reduce: func(values []float64, _ map[string]float64) float64 {
			if len(values) == 0 {
				return math.NaN()
			}
			hi := values[0]
			for _, v := range values[1:] {
				hi = math.Max(hi, v)
			}
			return hi
		},
	},
	"var": {
		Name:   "var",
		Reduce: true,
		reduce: variance,
	},
	"std": {
		Name:   "std",
		Reduce: true,
		reduce: func(values []float64, params map[string]float64) float64 {
			return math.Sqrt(variance(values, params))
		},
	},
	"median": {
		Name:   "median",
		Reduce: true,
		reduce: func(values []float64, _ map[string]float64) float64 {
			return quantile(values, 0.5)
		},
	},
	"quantile": {
		Name:   "quantile",
		Reduce: true,
		params: []paramSpec{{"q", 0.5}},
		reduce: func(values []float64, params map[string]float64) float64 {
			return quantile(values, params["q"])
		},
	},
}

func variance(values []float64, _ map[string]float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var total float64
	for _, v := range values {
		total += v
	}
	mean := total / float64(len(values))
	var acc float64
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return acc / float64(len(values))
}

// quantile interpolates linearly between the two nearest order statistics.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
