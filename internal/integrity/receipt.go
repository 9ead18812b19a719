package integrity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/prepgrid/gradecore/internal/engine"
	"github.com/prepgrid/gradecore/internal/fault"
)

// A receipt is a signed token binding a result id to its digest. The
// persistence layer hands it to the student as proof of what was graded;
// presenting it later lets anyone holding the secret confirm the stored
// result still matches.

type ReceiptClaims struct {
	ResultID string `json:"result_id"`
	ExamID   string `json:"exam_id"`
	Digest   string `json:"digest"`
	jwt.RegisteredClaims
}

// Receipt issues an HS256 token over the sealed result.
func Receipt(res *engine.FinalResult, secret []byte) (string, error) {
	if res == nil || res.Digest == "" {
		return "", errors.New("result is not sealed")
	}
	claims := ReceiptClaims{
		ResultID: res.ID,
		ExamID:   res.ExamID,
		Digest:   res.Digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  res.StudentID,
			IssuedAt: jwt.NewNumericDate(res.FinalizedAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing receipt")
	}
	return signed, nil
}

// VerifyReceipt checks the token signature and that its digest claim still
// matches the stored result.
func VerifyReceipt(tokenStr string, res *engine.FinalResult, secret []byte) error {
	var claims ReceiptClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuedAt(), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return errors.Wrap(err, "parsing receipt")
	}
	if !tok.Valid {
		return errors.New("invalid receipt")
	}
	if claims.ResultID != res.ID || claims.Digest != res.Digest {
		return fault.New(fault.Integrity, "receipt does not match result %s", res.ID)
	}
	return nil
}
