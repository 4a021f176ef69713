// Package pgstore records submissions and validation outcomes in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/addonvalidator/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS addon_submission (
	task_id       uuid PRIMARY KEY,
	file_name     text        NOT NULL,
	size_bytes    bigint      NOT NULL,
	encoded       boolean     NOT NULL,
	client_ip     text,
	user_agent    text,
	created_at    timestamptz NOT NULL,
	completed_at  timestamptz,
	detected_type text,
	errors        integer,
	warnings      integer,
	infos         integer,
	success       boolean,
	rejected      boolean,
	result        jsonb
);
CREATE INDEX IF NOT EXISTS addon_submission_created_idx ON addon_submission (created_at DESC);
`

const insertSubmissionSQL = `
INSERT INTO addon_submission (task_id, file_name, size_bytes, encoded, client_ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (task_id) DO NOTHING`

const updateOutcomeSQL = `
UPDATE addon_submission
SET completed_at = $2, detected_type = $3, errors = $4, warnings = $5, infos = $6,
    success = $7, rejected = $8, result = $9
WHERE task_id = $1`

const recentSQL = `
SELECT task_id, file_name, size_bytes, encoded, client_ip, created_at,
       completed_at, detected_type, errors, warnings, infos, success, rejected
FROM addon_submission
ORDER BY created_at DESC
LIMIT $1`

// Store implements core.History.
type Store struct {
	db DBTX
}

var _ core.History = (*Store)(nil)

// New wraps a pool or transaction.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// RecordSubmission inserts a submission row. Recording the same task twice
// is a no-op.
func (s *Store) RecordSubmission(ctx context.Context, sub core.Submission) error {
	id, err := taskUUID(sub.TaskID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, insertSubmissionSQL,
		id,
		sub.FileName,
		sub.Size,
		sub.Encoded,
		optionalText(sub.ClientIP),
		optionalText(sub.UserAgent),
		pgtype.Timestamptz{Time: sub.Created, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record submission %s: %w", sub.TaskID, err)
	}
	return nil
}

// RecordOutcome stores the result of a finished job.
func (s *Store) RecordOutcome(ctx context.Context, taskID string, r *core.Result) error {
	id, err := taskUUID(taskID)
	if err != nil {
		return err
	}

	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", taskID, err)
	}

	completed := r.Completed
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	tag, err := s.db.Exec(ctx, updateOutcomeSQL,
		id,
		pgtype.Timestamptz{Time: completed, Valid: true},
		r.DetectedType,
		int32(r.Errors),
		int32(r.Warnings),
		int32(r.Infos),
		r.Success,
		r.Rejected,
		doc,
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record outcome %s: no submission row", taskID)
	}
	return nil
}

// Entry is one row of the submission history.
type Entry struct {
	TaskID       string
	FileName     string
	Size         int64
	Encoded      bool
	ClientIP     string
	Created      time.Time
	Completed    *time.Time
	DetectedType string
	Errors       int
	Warnings     int
	Infos        int
	Success      bool
	Rejected     bool
}

// Done reports whether the outcome has been recorded.
func (e Entry) Done() bool {
	return e.Completed != nil
}

// Recent returns the latest submissions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id           pgtype.UUID
			e            Entry
			clientIP     pgtype.Text
			created      pgtype.Timestamptz
			completed    pgtype.Timestamptz
			detectedType pgtype.Text
			errs, warns  pgtype.Int4
			infos        pgtype.Int4
			success      pgtype.Bool
			rejected     pgtype.Bool
		)
		if err := rows.Scan(&id, &e.FileName, &e.Size, &e.Encoded, &clientIP, &created,
			&completed, &detectedType, &errs, &warns, &infos, &success, &rejected); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		e.TaskID = uuid.UUID(id.Bytes).String()
		e.ClientIP = clientIP.String
		e.Created = created.Time
		if completed.Valid {
			t := completed.Time
			e.Completed = &t
		}
		e.DetectedType = detectedType.String
		e.Errors = int(errs.Int32)
		e.Warnings = int(warns.Int32)
		e.Infos = int(infos.Int32)
		e.Success = success.Bool
		e.Rejected = rejected.Bool
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func taskUUID(taskID string) (pgtype.UUID, error) {
	u, err := uuid.Parse(taskID)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid task id %q: %w", taskID, err)
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
