package store

import (
	"crypto/rand"
	"math/big"

	hashids "github.com/speps/go-hashids"
)

// newRefCode generates a short shareable code for a stored result. Hashids
// over a random number gives codes that are compact and unambiguous without
// exposing sequential ids.
func newRefCode() string {
	const fallback = "result"

	n, err := rand.Int(rand.Reader, big.NewInt(1<<40))
	if err != nil {
		return fallback
	}
	hd := hashids.NewData()
	hd.Salt = "gradecore result reference 2026"
	hd.MinLength = 8
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return fallback
	}
	code, err := h.EncodeInt64([]int64{n.Int64()})
	if err != nil {
		return fallback
	}
	return code
}
