package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/prepgrid/gradecore/internal/engine"
)

// SQLStore persists results in sqlite or postgres over the shared schema.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) SaveResult(ctx context.Context, res *engine.FinalResult) (StoredResult, error) {
	if res == nil || res.ID == "" {
		return StoredResult{}, errors.New("result has no id")
	}
	if res.Digest == "" {
		return StoredResult{}, errors.New("result is not sealed")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return StoredResult{}, errors.Wrap(err, "marshaling result payload")
	}
	ref := newRefCode()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, ref_code, exam_id, student_id, payload_json, digest, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, ref, res.ExamID, res.StudentID, string(payload), res.Digest, time.Now().Unix())
	if err != nil {
		return StoredResult{}, errors.Wrap(err, "inserting result")
	}
	return StoredResult{Result: res, RefCode: ref, Digest: res.Digest}, nil
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (StoredResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ref_code, payload_json, digest FROM results WHERE id=$1`, id)
	return scanResult(row)
}

func (s *SQLStore) GetResultByRef(ctx context.Context, ref string) (StoredResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ref_code, payload_json, digest FROM results WHERE ref_code=$1`, ref)
	return scanResult(row)
}

func scanResult(row *sql.Row) (StoredResult, error) {
	var ref, payload, digest string
	if err := row.Scan(&ref, &payload, &digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredResult{}, ErrNotFound
		}
		return StoredResult{}, errors.Wrap(err, "scanning result")
	}
	var res engine.FinalResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return StoredResult{}, errors.Wrap(err, "unmarshaling result payload")
	}
	return StoredResult{Result: &res, RefCode: ref, Digest: digest}, nil
}

func (s *SQLStore) ListResults(ctx context.Context, examID string) ([]StoredResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref_code, payload_json, digest FROM results WHERE exam_id=$1 ORDER BY created_at DESC`,
		examID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	defer rows.Close()

	out := make([]StoredResult, 0)
	for rows.Next() {
		var ref, payload, digest string
		if err := rows.Scan(&ref, &payload, &digest); err != nil {
			return nil, errors.Wrap(err, "scanning result row")
		}
		var res engine.FinalResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, errors.Wrap(err, "unmarshaling result payload")
		}
		out = append(out, StoredResult{Result: &res, RefCode: ref, Digest: digest})
	}
	return out, rows.Err()
}
