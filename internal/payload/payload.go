// Package payload builds the multipart/form-data body the async upload path
// sends to the validator service.
//
// The body is assembled from an ordered list of parts rather than with
// mime/multipart: the service expects a fixed boundary and a fixed field
// order, and the file part carries a data URI as its content.
package payload

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// Boundary is the delimiter the validator service has always received.
const Boundary = "xxxxxxxxx"

// Field names and content type of the addon upload form.
const (
	CSRFField         = "csrfmiddlewaretoken"
	AddonField        = "addon"
	AddonContentType  = "application/x-xpinstall"
	crlf              = "\r\n"
	ErrorSentinel     = `{"error":true}`
	defaultMediaType  = "application/octet-stream"
	dataURIBase64Mark = ";base64,"
)

// Part is one form field. A Part with a Filename is a file field.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Body        []byte
}

// Payload is an ordered sequence of parts joined by Boundary.
type Payload struct {
	Boundary string
	Parts    []Part
}

// New returns an empty payload using the fixed Boundary.
func New() *Payload {
	return &Payload{Boundary: Boundary}
}

// AddField appends a plain form field.
func (p *Payload) AddField(name, value string) *Payload {
	p.Parts = append(p.Parts, Part{Name: name, Body: []byte(value)})
	return p
}

// AddFile appends a file field.
func (p *Payload) AddFile(name, filename, contentType string, body []byte) *Payload {
	p.Parts = append(p.Parts, Part{
		Name:        name,
		Filename:    filename,
		ContentType: contentType,
		Body:        body,
	})
	return p
}

// Addon builds the upload body: the CSRF token, then the package under the
// "addon" field with its original filename.
func Addon(csrfToken, filename string, data []byte) *Payload {
	return New().
		AddField(CSRFField, csrfToken).
		AddFile(AddonField, filename, AddonContentType, data)
}

// Bytes serializes the payload.
//
// Every part is preceded by a boundary line and followed by CRLF; the body
// ends with the closing boundary and no trailing newline.
func (p *Payload) Bytes() []byte {
	var b bytes.Buffer
	for _, part := range p.Parts {
		b.WriteString("--" + p.Boundary + crlf)
		b.WriteString(`Content-Disposition: form-data; name="` + part.Name + `"`)
		if part.Filename != "" {
			b.WriteString(`; filename="` + part.Filename + `"`)
		}
		b.WriteString(crlf)
		if part.ContentType != "" {
			b.WriteString("Content-Type: " + part.ContentType + crlf)
		}
		b.WriteString(crlf)
		b.Write(part.Body)
		b.WriteString(crlf)
	}
	b.WriteString("--" + p.Boundary + "--")
	return b.Bytes()
}

// Len is the length in bytes of the serialized body.
func (p *Payload) Len() int {
	n := 0
	for _, part := range p.Parts {
		n += len("--"+p.Boundary+crlf) + len(`Content-Disposition: form-data; name="`+part.Name+`"`)
		if part.Filename != "" {
			n += len(`; filename="` + part.Filename + `"`)
		}
		n += len(crlf)
		if part.ContentType != "" {
			n += len("Content-Type: " + part.ContentType + crlf)
		}
		n += len(crlf) + len(part.Body) + len(crlf)
	}
	return n + len("--"+p.Boundary+"--")
}

// ContentType is the request Content-Type header value.
func (p *Payload) ContentType() string {
	return "multipart/form-data; boundary=" + p.Boundary
}

// DataURI encodes data the way an in-memory "read as data URL" does.
func DataURI(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = defaultMediaType
	}
	return "data:" + mediaType + dataURIBase64Mark + base64.StdEncoding.EncodeToString(data)
}

// IsErrorSentinel reports whether a response body is the service's silent
// failure marker.
func IsErrorSentinel(body string) bool {
	return strings.TrimSpace(body) == ErrorSentinel
}
