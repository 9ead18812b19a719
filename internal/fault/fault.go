// Package fault defines the structured error values the grading core
// returns across its boundaries. Callers match on Kind rather than on
// message text; messages are for humans and logs only.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Validation: malformed exam/question/answer shape. Recovered locally
	// where a safe default exists.
	Validation Kind = "validation"
	// Resolution: a marking rule could not be resolved; the global default
	// applies instead.
	Resolution Kind = "resolution"
	// Evaluation: a malformed answer for numeric/integer kinds. Treated as
	// an incorrect attempt, never a crash.
	Evaluation Kind = "evaluation"
	// State: an operation attempted in the wrong engine state. Rejected
	// with no state mutated.
	State Kind = "state"
	// Integrity: a digest mismatch on verification. Fatal for the trust of
	// that result.
	Integrity Kind = "integrity"
)

type Fault struct {
	Kind   Kind
	Detail string
	Err    error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Fault) Unwrap() error { return f.Err }

// Is lets errors.Is match any fault of the same kind.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == f.Kind && (other.Detail == "" || other.Detail == f.Detail)
}

func New(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the fault kind carried by err, or "" if err is not a Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err is a Fault of the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
