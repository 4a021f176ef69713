// Package memstore keeps validation jobs in an in-memory database.
package memstore

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/JonMunkholm/addonvalidator/internal/core"
)

const table = "job"

// record is the stored form of a job. memdb objects are immutable once
// inserted; updates insert a modified copy.
type record struct {
	TaskID  string
	Created int64
	Job     core.Job
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		table: {
			Name: table,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:         "id",
					Unique:       true,
					Indexer:      &memdb.StringFieldIndex{Field: "TaskID"},
					AllowMissing: false,
				},
				"created": {
					Name:         "created",
					Unique:       false,
					Indexer:      &memdb.IntFieldIndex{Field: "Created"},
					AllowMissing: false,
				},
			},
		},
	},
}

// Store implements core.JobStore.
type Store struct {
	db *memdb.MemDB
}

var _ core.JobStore = (*Store)(nil)

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("create job database: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces a job.
func (s *Store) Put(job *core.Job) error {
	if job == nil || job.TaskID == "" {
		return fmt.Errorf("put job: missing task id")
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(table, newRecord(*job)); err != nil {
		return fmt.Errorf("put job %s: %w", job.TaskID, err)
	}
	txn.Commit()
	return nil
}

// Get returns a copy of the job, or core.ErrTaskNotFound.
func (s *Store) Get(taskID string) (*core.Job, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(table, "id", taskID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", taskID, err)
	}
	if raw == nil {
		return nil, core.ErrTaskNotFound
	}
	job := raw.(*record).Job
	return &job, nil
}

// Update applies fn to a copy of the job and stores the copy. fn runs inside
// the write transaction, so concurrent updates of one job are serialized.
func (s *Store) Update(taskID string, fn func(*core.Job)) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(table, "id", taskID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", taskID, err)
	}
	if raw == nil {
		return core.ErrTaskNotFound
	}

	job := raw.(*record).Job
	fn(&job)
	job.TaskID = taskID

	if err := txn.Insert(table, newRecord(job)); err != nil {
		return fmt.Errorf("update job %s: %w", taskID, err)
	}
	txn.Commit()
	return nil
}

// DeleteOlderThan removes finished jobs created before cutoff and returns
// how many were removed. Queued and working jobs are kept.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(table, "created")
	if err != nil {
		return 0, fmt.Errorf("scan jobs: %w", err)
	}

	limit := cutoff.UnixNano()
	var expired []*record
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*record)
		if rec.Created < limit && rec.Job.Status == core.JobDone {
			expired = append(expired, rec)
		}
	}

	for _, rec := range expired {
		if err := txn.Delete(table, rec); err != nil {
			return 0, fmt.Errorf("delete job %s: %w", rec.TaskID, err)
		}
	}
	txn.Commit()
	return len(expired), nil
}

// Count returns the number of stored jobs.
func (s *Store) Count() (int, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(table, "id")
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

func newRecord(job core.Job) *record {
	return &record{
		TaskID:  job.TaskID,
		Created: job.Created.UnixNano(),
		Job:     job,
	}
}
