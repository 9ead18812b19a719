// Package integrity seals a finalized result with a content digest so that
// any later mutation of the stored result is detectable.
package integrity

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/prepgrid/gradecore/internal/engine"
	"github.com/prepgrid/gradecore/internal/fault"
)

// Validator computes and checks SHA3-256 digests over the canonical form of
// a final result. It holds no state and is safe for concurrent use.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// canonical serializes the result deterministically: the digest field is
// excluded, struct fields marshal in declared order and encoding/json sorts
// map keys, so the same logical content always produces the same bytes
// regardless of map iteration order.
func canonical(res *engine.FinalResult) ([]byte, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}
	clone := *res
	clone.Digest = ""
	b, err := json.Marshal(&clone)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing result")
	}
	return b, nil
}

// Hash returns the hex SHA3-256 digest of the canonical result.
func (v *Validator) Hash(res *engine.FinalResult) (string, error) {
	b, err := canonical(res)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest and compares it in constant time. A mismatch
// is an integrity fault: the result can no longer be trusted and must never
// be silently repaired.
func (v *Validator) Verify(res *engine.FinalResult, digest string) error {
	computed, err := v.Hash(res)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) != 1 {
		return fault.New(fault.Integrity, "digest mismatch for result %s", res.ID)
	}
	return nil
}
