// Package poll follows a validation job on the service until it finishes.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// Defaults match the pacing of the upload status page.
const (
	DefaultInterval       = 3 * time.Second
	DefaultInitialDelay   = 1 * time.Second
	DefaultRequestTimeout = 7500 * time.Millisecond
	DefaultMaxFailures    = 3
)

// Job states reported by the service.
const (
	StatusQueued  = "queued"
	StatusWorking = "working"
	StatusDone    = "done"
)

var (
	// ErrNoStatus means the service answered without a status field, which
	// it does when processing of the add-on failed.
	ErrNoStatus = errors.New("there was an error processing your add-on")

	// ErrTooManyFailures is returned after more than MaxFailures consecutive
	// failed polls.
	ErrTooManyFailures = errors.New("status polling failed too many times")

	// ErrTaskNotFound means the service does not know the task.
	ErrTaskNotFound = errors.New("validation task not found")
)

// Poller polls "<status page>/poll" until the job is done.
type Poller struct {
	Client         *http.Client
	Interval       time.Duration
	InitialDelay   time.Duration
	RequestTimeout time.Duration
	MaxFailures    int

	// OnStatus is called with every status that is not done.
	OnStatus func(status string)
}

// New returns a Poller with default pacing.
func New(client *http.Client) *Poller {
	return &Poller{
		Client:         client,
		Interval:       DefaultInterval,
		InitialDelay:   DefaultInitialDelay,
		RequestTimeout: DefaultRequestTimeout,
		MaxFailures:    DefaultMaxFailures,
	}
}

type pollResponse struct {
	Status *string `json:"status"`
}

// Run polls statusURL (".../validator/status/<task>/") and returns the
// absolute URL of the result page once the job is done.
func (p *Poller) Run(ctx context.Context, statusURL string) (string, error) {
	pollURL, resultURL, err := endpoints(statusURL)
	if err != nil {
		return "", err
	}
	logger := logging.WithFields(ctx, "status_url", statusURL)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(p.InitialDelay):
	}

	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	failures := 0
	for {
		status, err := p.pollOnce(ctx, pollURL)
		switch {
		case err == nil:
			failures = 0
			if status == StatusDone {
				return resultURL, nil
			}
			if p.OnStatus != nil {
				p.OnStatus(status)
			}
		case errors.Is(err, ErrNoStatus), errors.Is(err, ErrTaskNotFound):
			return "", err
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			failures++
			logger.Warn("status poll failed", "error", err, "failures", failures)
			if failures > p.MaxFailures {
				return "", fmt.Errorf("%w: %v", ErrTooManyFailures, err)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) pollOnce(ctx context.Context, pollURL string) (string, error) {
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pollURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrTaskNotFound
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var body pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode poll response: %w", err)
	}
	if body.Status == nil {
		return "", ErrNoStatus
	}
	return *body.Status, nil
}

// endpoints derives the poll URL and the result page URL from a status page
// URL of the form ".../validator/status/<task>/".
func endpoints(statusURL string) (pollURL, resultURL string, err error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return "", "", fmt.Errorf("parse status url: %w", err)
	}
	trimmed := strings.TrimSuffix(u.Path, "/")
	task := path.Base(trimmed)
	statusDir := path.Dir(trimmed)
	if task == "" || task == "." || task == "/" || path.Base(statusDir) != "status" {
		return "", "", fmt.Errorf("not a status url: %s", statusURL)
	}

	pu := *u
	pu.Path = trimmed + "/poll"
	pu.RawQuery = ""

	ru := *u
	ru.Path = path.Join(path.Dir(statusDir), "result", task)
	ru.RawQuery = ""

	return pu.String(), ru.String(), nil
}
