package core

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNoFile is returned when the request carries no addon part.
	ErrNoFile = errors.New("no file provided")

	// ErrBadExtension is returned for names not ending in .xpi or .jar.
	ErrBadExtension = errors.New("file is not a jar or xpi package")

	// ErrNotPackage is returned when the decoded body lacks the ZIP signature.
	ErrNotPackage = errors.New("file is not a recognized add-on package")

	// ErrFileTooLarge is returned when the decoded package exceeds the limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrBadEncoding is returned when an encoded body is not a valid data URI.
	ErrBadEncoding = errors.New("malformed data uri")

	// ErrTaskNotFound is returned for unknown or expired task IDs.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotReady is returned when a result is requested before the job is done.
	ErrNotReady = errors.New("result not ready")
)

// JobStatus is the lifecycle state reported by the poll endpoint.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobWorking JobStatus = "working"
	JobDone    JobStatus = "done"
)

// Job is one submitted package and, once finished, its result.
type Job struct {
	TaskID   string
	FileName string
	Size     int64
	Status   JobStatus
	Result   *Result
	Created  time.Time
	Updated  time.Time
}

// JobStore keeps jobs between submission and result expiry.
// Get and Update return ErrTaskNotFound for unknown IDs.
type JobStore interface {
	Put(job *Job) error
	Get(taskID string) (*Job, error)
	Update(taskID string, fn func(*Job)) error
	// DeleteOlderThan removes done jobs created before cutoff.
	DeleteOlderThan(cutoff time.Time) (int, error)
	Count() (int, error)
}

// Submission describes an accepted upload for the history log.
type Submission struct {
	TaskID    string
	FileName  string
	Size      int64
	Encoded   bool
	ClientIP  string
	UserAgent string
	Created   time.Time
}

// History records submissions and their outcomes. It is optional; a nil
// History disables recording.
type History interface {
	RecordSubmission(ctx context.Context, s Submission) error
	RecordOutcome(ctx context.Context, taskID string, r *Result) error
}

// SaveRequest is the uploaded addon part as received by the save endpoint.
type SaveRequest struct {
	FileName string
	Body     io.Reader
	// Size is the transferred size when known, -1 otherwise.
	Size int64
	// Encoded is set for the in-page upload path, where the part holds a
	// base64 data URI instead of raw bytes.
	Encoded bool
}
