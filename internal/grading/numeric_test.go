package grading

import (
	"testing"

	"github.com/prepgrid/gradecore/internal/rules"
)

func absTol(v float64) rules.Tolerance {
	return rules.Tolerance{Mode: rules.ToleranceAbsolute, Value: v}
}

func pctTol(v float64) rules.Tolerance {
	return rules.Tolerance{Mode: rules.TolerancePercentage, Value: v}
}

func TestCompareNumeric(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		correct string
		tol     rules.Tolerance
		want    bool
	}{
		{"exact equal", "11.3", "11.3", absTol(0.1), true},
		{"inside absolute band", "11.35", "11.3", absTol(0.1), true},
		{"on absolute boundary", "11.4", "11.3", absTol(0.1), true},
		{"outside absolute band", "11.5", "11.3", absTol(0.1), false},
		{"scientific notation equal", "0.0123", "1.23e-2", absTol(0), true},
		{"zero tolerance exact only", "11.31", "11.3", absTol(0), false},
		{"bare leading point", ".5", "0.5", absTol(0), true},
		{"bare trailing point", "11.", "11", absTol(0), true},
		{"signed value", "-4", "-4.0", absTol(0), true},
		{"leading zeros", "007", "7", absTol(0), true},
		{"percentage inside", "103", "100", pctTol(5), true},
		{"percentage boundary", "105", "100", pctTol(5), true},
		{"percentage outside", "106", "100", pctTol(5), false},
		{"percentage negative correct", "-97", "-100", pctTol(5), true},
		{"percentage zero correct falls back to band", "0.3", "0", pctTol(0.5), true},
		{"percentage zero correct outside band", "0.6", "0", pctTol(0.5), false},
		{"unparseable user", "abc", "1", absTol(10), false},
		{"unparseable correct", "1", "abc", absTol(10), false},
		{"empty user", "", "1", absTol(10), false},
		{"thousands separator rejected", "1,000", "1000", absTol(0), false},
		{"equal beats tolerance mode", "5", "5", pctTol(0), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompareNumeric(tc.user, tc.correct, tc.tol); got != tc.want {
				t.Fatalf("CompareNumeric(%q,%q,%+v) = %v, want %v",
					tc.user, tc.correct, tc.tol, got, tc.want)
			}
		})
	}
}

func TestCompareNumericDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if !CompareNumeric("11.35", "11.3", absTol(0.1)) {
			t.Fatal("comparison changed across calls")
		}
	}
}
