package rng

// Weighted is one labeled option in a categorical distribution.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// Choice draws one value from options according to their relative weights
// (weights need not sum to 1; they are normalized internally). Panics if
// options is empty or all weights are <= 0 — both are planner bugs, not
// runtime conditions.
func Choice[T any](s *Source, options []Weighted[T]) T {
	var total float64
	for _, o := range options {
		total += o.Weight
	}
	if total <= 0 {
		panic("rng: Choice called with no positive-weight options")
	}

	r := s.Float64() * total
	var cumulative float64
	for _, o := range options {
		cumulative += o.Weight
		if r < cumulative {
			return o.Value
		}
	}
	// Floating point rounding can leave r just past the last boundary;
	// fall back to the last option rather than a zero value.
	return options[len(options)-1].Value
}
