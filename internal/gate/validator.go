package gate

import (
	"context"
	"sync"

	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// Validator owns the current SubmissionGate and projects every change onto a
// Presenter. It is safe for concurrent use.
type Validator struct {
	presenter Presenter

	mu         sync.Mutex
	current    SubmissionGate
	generation uint64
	candidate  UploadCandidate

	pending sync.WaitGroup
}

// NewValidator returns a Validator with submission disabled until the first
// file is selected.
func NewValidator(p Presenter) *Validator {
	v := &Validator{presenter: p, current: BadExtension}
	return v
}

// Validate runs the rule set for a newly selected file and returns the gate
// that is in effect when it returns.
//
// With a non-nil src the gate is closed with ReasonNotRecognizedPackage and a
// single-shot sniff runs in the background; the gate opens only if the sniff
// finds the package signature. A later call to Validate supersedes any sniff
// still in flight.
func (v *Validator) Validate(ctx context.Context, filename string, src ContentSource) SubmissionGate {
	gen := v.begin(filename)

	// Nothing read yet, so with content access this is NotRecognized.
	g := v.publish(gen, Decide(filename, src != nil, nil))
	if src == nil || g.Reason == ReasonBadExtension {
		return g
	}

	v.pending.Add(1)
	go func() {
		defer v.pending.Done()
		v.sniff(ctx, gen, filename, src)
	}()

	return g
}

// Current returns the gate in effect right now.
func (v *Validator) Current() SubmissionGate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Candidate returns what is known about the selected file.
func (v *Validator) Candidate() UploadCandidate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.candidate
}

// Wait blocks until every sniff started so far has settled.
func (v *Validator) Wait() SubmissionGate {
	v.pending.Wait()
	return v.Current()
}

func (v *Validator) begin(filename string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.candidate = UploadCandidate{Filename: filename}
	return v.generation
}

func (v *Validator) sniff(ctx context.Context, gen uint64, filename string, src ContentSource) {
	logger := logging.WithFields(ctx, "file", src.Name())

	type result struct {
		cand UploadCandidate
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cand, err := Sniff(src)
		done <- result{cand, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		logger.Warn("content sniff abandoned", "error", ctx.Err())
		return
	}

	if res.err != nil {
		logger.Warn("content sniff failed, submission stays disabled", "error", res.err)
		return
	}

	v.mu.Lock()
	if gen == v.generation {
		v.candidate = res.cand
	}
	v.mu.Unlock()

	if g := Decide(filename, true, res.cand.LeadingBytes); g.Allowed {
		v.publish(gen, g)
		return
	}
	logger.Debug("content sniff found no package signature", "leading", res.cand.LeadingBytes)
}

// publish stores g and projects it, unless a newer selection has happened.
func (v *Validator) publish(gen uint64, g SubmissionGate) SubmissionGate {
	v.mu.Lock()
	if gen != v.generation {
		cur := v.current
		v.mu.Unlock()
		return cur
	}
	v.current = g
	// Project under the lock so presenter updates keep the same order as
	// gate changes.
	Project(v.presenter, g)
	v.mu.Unlock()
	return g
}
