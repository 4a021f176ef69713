package submit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/JonMunkholm/addonvalidator/internal/logging"
	"github.com/JonMunkholm/addonvalidator/internal/payload"
)

// ErrNoRedirect is returned by NativePost when the service answers without
// redirecting.
var ErrNoRedirect = errors.New("service did not redirect")

// NativePost performs the ordinary form submission: a standard multipart
// POST to the form's declared action, without the ajax flag. It returns the
// absolute URL the service redirected to.
func NativePost(ctx context.Context, client *http.Client, form *Form) (string, error) {
	if form == nil || form.File == nil {
		return "", ErrNoFile
	}
	action, err := form.ActionURL()
	if err != nil {
		return "", err
	}

	data, err := readAll(form.File)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField(payload.CSRFField, form.CSRFToken); err != nil {
		return "", fmt.Errorf("write csrf field: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, payload.AddonField, form.File.Name()))
	h.Set("Content-Type", payload.AddonContentType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, &body)
	if err != nil {
		return "", fmt.Errorf("build form post: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	// Stop at the first redirect so the caller sees where the service sends us.
	noFollow := *client
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noFollow.Do(req)
	if err != nil {
		return "", fmt.Errorf("form post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	loc := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || loc == "" {
		return "", fmt.Errorf("%w (status %d)", ErrNoRedirect, resp.StatusCode)
	}

	dest, err := resolve(action, loc)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("form post redirected", "location", dest)
	return dest, nil
}
