package grading

import (
	"math"
	"strconv"
	"strings"

	"github.com/prepgrid/gradecore/internal/rules"
)

// CompareNumeric reports whether a submitted numeric literal matches the
// correct one under the given tolerance. Parsing is permissive (signed
// decimals, leading/trailing zeros, bare decimal points, scientific
// notation) but locale-independent; a parse failure on either side is a
// mismatch, never an error.
func CompareNumeric(user, correct string, tol rules.Tolerance) bool {
	uv, uok := parseNumeric(user)
	cv, cok := parseNumeric(correct)
	if !uok || !cok {
		return false
	}
	if uv == cv {
		return true
	}
	if tol.Value == 0 {
		// zero tolerance degenerates to exact-value equality
		return false
	}
	switch tol.Mode {
	case rules.TolerancePercentage:
		if cv == 0 {
			// percentage of zero is degenerate; treat as an absolute
			// band around zero instead
			return math.Abs(uv) <= tol.Value
		}
		return math.Abs(uv-cv) <= math.Abs(cv)*tol.Value/100
	default:
		return math.Abs(uv-cv) <= tol.Value
	}
}

// parseNumeric accepts forms like "-3", "0.50", ".5", "11.", "1.23e-2".
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
