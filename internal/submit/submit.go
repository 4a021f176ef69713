// Package submit sends a validated add-on package to the validator service.
//
// Two strategies implement Submitter. Which one is used is decided once, at
// startup, from the runtime's capabilities:
//
//   - AsyncSubmitter reads the whole file into memory, encodes it as a data
//     URI inside a hand-built multipart body and POSTs it to the service's
//     ajax endpoint. It owns the submission, so Submit always returns false.
//   - NativeSubmitter is the compatibility fallback. It never touches the
//     network; Submit returns true and the caller performs an ordinary
//     multipart form POST (see NativePost).
package submit

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
)

// Submitter decides what happens when the user presses submit.
// It returns true when the native, non-intercepted submission should proceed.
type Submitter interface {
	Submit(ctx context.Context, form *Form, g gate.SubmissionGate) bool
}

// Capabilities describes what the runtime can do.
type Capabilities struct {
	// ContentAccess is true when file contents can be read locally.
	ContentAccess bool
}

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// Deps are the collaborators a Submitter needs.
type Deps struct {
	Client    *http.Client
	Navigator Navigator
	Presenter gate.Presenter
}

var (
	// ErrInFlight is logged when a submission is attempted while another one
	// is still reading or sending.
	ErrInFlight = errors.New("submission already in flight")

	// ErrNoFile is returned when the form has no selected file.
	ErrNoFile = errors.New("no file selected")

	// ErrUnexpectedStatus is recorded for responses other than 200 and 304.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// New selects the strategy for caps.
func New(caps Capabilities, deps Deps) Submitter {
	if !caps.ContentAccess {
		return NewNative(deps.Presenter)
	}
	return NewAsync(deps)
}

// blocked reports and alerts when g does not allow submission.
func blocked(p gate.Presenter, g gate.SubmissionGate) bool {
	if g.Allowed {
		return false
	}
	if p != nil {
		p.Alert(gate.ChooseValidText)
	}
	return true
}

// NativeSubmitter lets the ordinary form submission go ahead.
type NativeSubmitter struct {
	presenter gate.Presenter
}

// NewNative returns the fallback strategy.
func NewNative(p gate.Presenter) *NativeSubmitter {
	return &NativeSubmitter{presenter: p}
}

// Submit blocks a closed gate and otherwise defers to the native submission.
func (n *NativeSubmitter) Submit(_ context.Context, _ *Form, g gate.SubmissionGate) bool {
	return !blocked(n.presenter, g)
}
