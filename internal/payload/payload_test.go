package payload

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddon_ExactBody(t *testing.T) {
	p := Addon("tok123", "addon.xpi", []byte("data:application/x-xpinstall;base64,UEs="))

	want := "--xxxxxxxxx\r\n" +
		"Content-Disposition: form-data; name=\"csrfmiddlewaretoken\"\r\n" +
		"\r\n" +
		"tok123\r\n" +
		"--xxxxxxxxx\r\n" +
		"Content-Disposition: form-data; name=\"addon\"; filename=\"addon.xpi\"\r\n" +
		"Content-Type: application/x-xpinstall\r\n" +
		"\r\n" +
		"data:application/x-xpinstall;base64,UEs=\r\n" +
		"--xxxxxxxxx--"

	if diff := cmp.Diff(want, string(p.Bytes())); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestPayload_LenMatchesBytes(t *testing.T) {
	tests := []struct {
		name string
		p    *Payload
	}{
		{"empty", New()},
		{"addon", Addon("t", "a.jar", []byte("abc"))},
		{"field only", New().AddField("x", "y")},
		{"file without type", New().AddFile("f", "f.bin", "", []byte{0, 1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, want := tt.p.Len(), len(tt.p.Bytes()); got != want {
				t.Errorf("Len() = %d, want %d", got, want)
			}
		})
	}
}

func TestPayload_ContentType(t *testing.T) {
	got := Addon("t", "a.xpi", nil).ContentType()
	if got != "multipart/form-data; boundary=xxxxxxxxx" {
		t.Errorf("ContentType() = %q", got)
	}
}

// The hand-built body must stay readable by a standard multipart parser.
func TestPayload_ParsesWithMimeMultipart(t *testing.T) {
	p := Addon("secret", "my addon.xpi", []byte("PK\x03\x04"))

	_, params, err := mime.ParseMediaType(p.ContentType())
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	r := multipart.NewReader(bytes.NewReader(p.Bytes()), params["boundary"])

	type got struct {
		Name, Filename, ContentType, Body string
	}
	var parts []got
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		body, _ := io.ReadAll(part)
		parts = append(parts, got{part.FormName(), part.FileName(), part.Header.Get("Content-Type"), string(body)})
	}

	want := []got{
		{"csrfmiddlewaretoken", "", "", "secret"},
		{"addon", "my addon.xpi", "application/x-xpinstall", "PK\x03\x04"},
	}
	if diff := cmp.Diff(want, parts); diff != "" {
		t.Errorf("parts mismatch (-want +got):\n%s", diff)
	}
}

func TestDataURI(t *testing.T) {
	uri := DataURI(AddonContentType, []byte("PK\x03\x04"))
	prefix := "data:application/x-xpinstall;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("DataURI = %q, want prefix %q", uri, prefix)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != "PK\x03\x04" {
		t.Errorf("decoded = %q", decoded)
	}

	if got := DataURI("", nil); got != "data:application/octet-stream;base64," {
		t.Errorf("DataURI with no type = %q", got)
	}
}

func TestIsErrorSentinel(t *testing.T) {
	tests := map[string]bool{
		`{"error":true}`:      true,
		"{\"error\":true}\n":  true,
		`{"error": true}`:     false,
		"/validator/status/x": false,
		"":                    false,
	}
	for body, want := range tests {
		if got := IsErrorSentinel(body); got != want {
			t.Errorf("IsErrorSentinel(%q) = %v, want %v", body, got, want)
		}
	}
}
