package submit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
	"github.com/JonMunkholm/addonvalidator/internal/payload"
)

// State is the phase of one submission attempt.
type State string

const (
	StateIdle            State = "idle"
	StateReadingFile     State = "reading_file"
	StateSending         State = "sending"
	StateSuccessRedirect State = "success_redirect"
	StateSuccessNoop     State = "success_noop"
	StateTransportError  State = "transport_error"
	StateFileReadError   State = "file_read_error"
)

// InFlight reports whether an attempt in state s has not finished yet.
func (s State) InFlight() bool {
	return s == StateReadingFile || s == StateSending
}

// Outcome is the final state of an attempt.
type Outcome struct {
	State       State
	RedirectURL string
	StatusCode  int
	Err         error
}

// AsyncSubmitter uploads the package itself and navigates on success.
// At most one attempt runs at a time; nothing is retried.
type AsyncSubmitter struct {
	client    *http.Client
	navigator Navigator
	presenter gate.Presenter

	mu      sync.Mutex
	state   State
	outcome Outcome
	done    chan struct{}
}

// NewAsync returns the in-memory upload strategy.
func NewAsync(deps Deps) *AsyncSubmitter {
	client := deps.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &AsyncSubmitter{
		client:    client,
		navigator: deps.Navigator,
		presenter: deps.Presenter,
		state:     StateIdle,
	}
}

// Submit starts an attempt and returns false: the native submission is always
// suppressed on this path.
func (a *AsyncSubmitter) Submit(ctx context.Context, form *Form, g gate.SubmissionGate) bool {
	if blocked(a.presenter, g) {
		return false
	}

	logger := logging.FromContext(ctx)

	a.mu.Lock()
	if a.state.InFlight() {
		a.mu.Unlock()
		logger.Warn("submit ignored", "error", ErrInFlight)
		return false
	}
	a.state = StateReadingFile
	a.outcome = Outcome{}
	done := make(chan struct{})
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		out := a.run(ctx, form)
		a.mu.Lock()
		a.state = out.State
		a.outcome = out
		a.mu.Unlock()
	}()

	return false
}

// State returns the phase of the current or last attempt.
func (a *AsyncSubmitter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Wait blocks until the current attempt finishes and returns its outcome.
// With no attempt started it returns an idle outcome immediately.
func (a *AsyncSubmitter) Wait() Outcome {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return Outcome{State: StateIdle}
	}
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

func (a *AsyncSubmitter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *AsyncSubmitter) run(ctx context.Context, form *Form) Outcome {
	if form == nil || form.File == nil {
		return Outcome{State: StateFileReadError, Err: ErrNoFile}
	}
	logger := logging.WithFields(ctx, "file", form.File.Name())

	data, err := readAll(form.File)
	if err != nil {
		logger.Error("read package failed", "error", err)
		return Outcome{State: StateFileReadError, Err: err}
	}

	endpoint, err := form.AsyncURL()
	if err != nil {
		logger.Error("resolve upload endpoint failed", "error", err)
		return Outcome{State: StateTransportError, Err: err}
	}

	a.setState(StateSending)

	body := payload.Addon(form.CSRFToken, form.File.Name(),
		[]byte(payload.DataURI(payload.AddonContentType, data)))
	encoded := body.Bytes()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		newProgressReader(ctx, bytes.NewReader(encoded), len(encoded)))
	if err != nil {
		logger.Error("build upload request failed", "error", err)
		return Outcome{State: StateTransportError, Err: err}
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Content-Type", body.ContentType())
	req.Header.Set("Content-Length", strconv.Itoa(body.Len()))

	resp, err := a.client.Do(req)
	if err != nil {
		logger.Error("upload failed", "error", err)
		return Outcome{State: StateTransportError, Err: err}
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("read upload response failed", "error", err)
		return Outcome{State: StateTransportError, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotModified {
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		logger.Error("upload rejected", "status", resp.StatusCode, "error", err)
		return Outcome{State: StateTransportError, StatusCode: resp.StatusCode, Err: err}
	}

	if payload.IsErrorSentinel(string(text)) {
		logger.Info("service reported an error for the upload")
		return Outcome{State: StateSuccessNoop, StatusCode: resp.StatusCode}
	}

	dest, err := resolve(endpoint, strings.TrimSpace(string(text)))
	if err != nil {
		logger.Error("invalid redirect from service", "body", string(text), "error", err)
		return Outcome{State: StateTransportError, StatusCode: resp.StatusCode, Err: err}
	}

	out := Outcome{State: StateSuccessRedirect, StatusCode: resp.StatusCode, RedirectURL: dest}
	if a.navigator != nil {
		if err := a.navigator.Navigate(ctx, dest); err != nil {
			logger.Warn("navigation failed", "url", dest, "error", err)
			out.Err = err
		}
	}
	return out
}

func readAll(src gate.ContentSource) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	return data, nil
}
