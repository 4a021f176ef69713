package submit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
)

// Paths relative to the upload page.
const (
	// FormActionPath is where the upload form posts.
	FormActionPath = "save/"

	// AsyncUploadPath is the ajax variant of the form action.
	AsyncUploadPath = "save/?ajax=true"

	// CSRFCookie is the cookie carrying the form's CSRF token.
	CSRFCookie = "csrftoken"
)

// Form is the upload form as rendered by the service.
type Form struct {
	PageURL   string // URL the form was loaded from
	Action    string // declared action, possibly relative to PageURL
	CSRFToken string
	File      gate.ContentSource
}

// ActionURL resolves the declared action against the page.
func (f *Form) ActionURL() (string, error) {
	action := f.Action
	if action == "" {
		action = FormActionPath
	}
	return resolve(f.PageURL, action)
}

// AsyncURL is the ajax upload endpoint for this form.
func (f *Form) AsyncURL() (string, error) {
	return resolve(f.PageURL, AsyncUploadPath)
}

// FetchForm loads the upload page and picks up the CSRF token the service
// sets as a cookie.
func FetchForm(ctx context.Context, client *http.Client, pageURL string, file gate.ContentSource) (*Form, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build form request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load upload page: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load upload page: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == CSRFCookie {
			token = c.Value
		}
	}
	if token == "" && client.Jar != nil {
		for _, c := range client.Jar.Cookies(resp.Request.URL) {
			if c.Name == CSRFCookie {
				token = c.Value
			}
		}
	}
	if token == "" {
		return nil, fmt.Errorf("upload page did not set %s cookie", CSRFCookie)
	}

	return &Form{
		PageURL:   resp.Request.URL.String(),
		Action:    FormActionPath,
		CSRFToken: token,
		File:      file,
	}, nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
