package core

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// HistoryTimeout bounds each write to the submission history.
var HistoryTimeout = 5 * time.Second

// DefaultMaxFileSize is used when ServiceConfig.MaxFileSize is not set.
const DefaultMaxFileSize = 50 << 20

// DefaultJobTimeout is used when ServiceConfig.JobTimeout is not set.
const DefaultJobTimeout = 5 * time.Minute

// ServiceConfig holds the job service settings.
type ServiceConfig struct {
	MaxFileSize   int64
	MaxConcurrent int
	MaxWaitTime   time.Duration
	JobTimeout    time.Duration
	TempDir       string
}

// Service accepts uploaded packages, validates them in the background, and
// serves job status and results.
type Service struct {
	jobs    JobStore
	history History
	limiter *JobLimiter
	cfg     ServiceConfig
	inspect func(path string) *Result

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a Service. history may be nil.
func NewService(jobs JobStore, history History, cfg ServiceConfig) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		jobs:    jobs,
		history: history,
		limiter: NewJobLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:     cfg,
		inspect: Inspect,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Save stores an uploaded package and queues it for validation. It returns
// the task ID to poll.
func (s *Service) Save(ctx context.Context, req SaveRequest) (string, error) {
	if req.Body == nil || req.FileName == "" {
		return "", ErrNoFile
	}
	if !gate.HasAcceptedExtension(req.FileName) {
		return "", fmt.Errorf("%w: %q", ErrBadExtension, req.FileName)
	}
	if !req.Encoded && req.Size > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, req.Size, s.cfg.MaxFileSize)
	}

	body := req.Body
	if req.Encoded {
		decoded, err := decodeDataURI(body)
		if err != nil {
			return "", err
		}
		body = decoded
	}

	path, size, err := s.spool(body, filepath.Ext(req.FileName))
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	taskID := uuid.NewString()
	job := &Job{
		TaskID:   taskID,
		FileName: req.FileName,
		Size:     size,
		Status:   JobQueued,
		Created:  now,
		Updated:  now,
	}
	if err := s.jobs.Put(job); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("register job: %w", err)
	}

	s.recordSubmission(ctx, Submission{
		TaskID:    taskID,
		FileName:  req.FileName,
		Size:      size,
		Encoded:   req.Encoded,
		ClientIP:  ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Created:   now,
	})

	s.wg.Add(1)
	go s.process(taskID, req.FileName, path)

	logging.FromContext(ctx).Info("package queued",
		"task_id", taskID,
		"file", req.FileName,
		"size", size,
		"encoded", req.Encoded,
	)
	return taskID, nil
}

// decodeDataURI drops everything up to and including the first comma and
// base64-decodes the rest.
func decodeDataURI(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadSlice(','); err != nil {
		return nil, fmt.Errorf("%w: no header terminator", ErrBadEncoding)
	}
	return base64.NewDecoder(base64.StdEncoding, br), nil
}

// spool writes the package to a uniquely named file in the temp directory.
func (s *Service) spool(r io.Reader, ext string) (string, int64, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gate.PackageSignature))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", 0, classifyReadErr(err)
	}
	if !gate.LooksLikePackage(head) {
		return "", 0, ErrNotPackage
	}

	name, err := randomName()
	if err != nil {
		return "", 0, err
	}
	path := filepath.Join(s.cfg.TempDir, name+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(br, s.cfg.MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		os.Remove(path)
		return "", 0, classifyReadErr(err)
	case n > s.cfg.MaxFileSize:
		os.Remove(path)
		return "", 0, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.cfg.MaxFileSize)
	}
	return path, n, nil
}

func classifyReadErr(err error) error {
	var corrupt base64.CorruptInputError
	if errors.As(err, &corrupt) {
		return fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return fmt.Errorf("read upload: %w", err)
}

func randomName() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate temp name: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// process runs one job: wait for a slot, inspect, store the result, and
// remove the temp file. Close stops the wait for a slot; an inspection that
// has started runs to completion or JobTimeout.
func (s *Service) process(taskID, fileName, path string) {
	defer s.wg.Done()
	defer os.Remove(path)

	logger := slog.With("task_id", taskID)

	if !s.limiter.TryAcquire() {
		logger.Info("waiting for a validation slot", "active", s.limiter.ActiveCount())
		if err := s.limiter.Acquire(s.baseCtx); err != nil {
			logger.Warn("validation slot not acquired", "error", err)
			r := newResult()
			r.reject([]string{"main", "queue", "unavailable"}, "The package could not be validated.", FormatUserError(err))
			r.finish()
			s.complete(s.baseCtx, taskID, fileName, r)
			return
		}
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), s.cfg.JobTimeout)
	defer cancel()

	if err := s.jobs.Update(taskID, func(j *Job) {
		j.Status = JobWorking
		j.Updated = time.Now().UTC()
	}); err != nil {
		logger.Warn("job vanished before inspection", "error", err)
		return
	}

	start := time.Now()
	result := s.runInspect(ctx, path)
	logger.Info("package validated",
		"type", result.DetectedType,
		"errors", result.Errors,
		"warnings", result.Warnings,
		"rejected", result.Rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.complete(ctx, taskID, fileName, result)
}

// runInspect returns a rejected result if inspection outlives ctx.
func (s *Service) runInspect(ctx context.Context, path string) *Result {
	done := make(chan *Result, 1)
	go func() {
		done <- s.inspect(path)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		r := newResult()
		r.reject([]string{"main", "timeout", "exceeded"}, "Validation did not finish in time.", FormatUserError(ctx.Err()))
		r.finish()
		return r
	}
}

func (s *Service) complete(ctx context.Context, taskID, fileName string, r *Result) {
	r.TaskID = taskID
	r.FileName = fileName

	err := s.jobs.Update(taskID, func(j *Job) {
		j.Status = JobDone
		j.Result = r
		j.Updated = time.Now().UTC()
	})
	if err != nil {
		slog.Warn("job result not stored", "task_id", taskID, "error", err)
		return
	}

	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HistoryTimeout)
	defer cancel()
	if err := s.history.RecordOutcome(hctx, taskID, r); err != nil {
		slog.Error("record outcome failed", "task_id", taskID, "error", err)
	}
}

func (s *Service) recordSubmission(ctx context.Context, sub Submission) {
	if s.history == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HistoryTimeout)
	defer cancel()
	if err := s.history.RecordSubmission(hctx, sub); err != nil {
		logging.FromContext(ctx).Error("record submission failed", "task_id", sub.TaskID, "error", err)
	}
}

// Poll returns the job's lifecycle state.
func (s *Service) Poll(taskID string) (JobStatus, error) {
	job, err := s.jobs.Get(taskID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Result returns the finished job's result.
func (s *Service) Result(taskID string) (*Result, error) {
	job, err := s.jobs.Get(taskID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobDone || job.Result == nil {
		return nil, ErrNotReady
	}
	return job.Result, nil
}

// LimiterStatus reports validation slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// JobCount returns the number of tracked jobs.
func (s *Service) JobCount() (int, error) {
	return s.jobs.Count()
}

// WaitForJobs blocks until every started job has finished or ctx is done.
func (s *Service) WaitForJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels jobs still waiting for a slot; they finish as rejected.
// Jobs already being inspected keep running. Call WaitForJobs afterwards to
// bound how long they may take.
func (s *Service) Close() {
	s.cancel()
}
