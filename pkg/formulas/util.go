package formulas

import "math"

// isNaN reports whether f is NaN, as a short local alias used throughout
// this package's talib result filtering.
func isNaN(f float64) bool {
	return math.IsNaN(f)
}
