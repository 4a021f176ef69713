// Package templates renders the validator's HTML pages as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/store/pgstore"
)

// Upload page hints selected by the ?error= query parameter.
const (
	HintUpload = "upload"
	HintAddon  = "addon"
)

var hintText = map[string]string{
	HintUpload: "There was an error uploading your file. Please try again.",
	HintAddon:  "You must choose a valid JAR or XPI add-on package.",
}

// page collects the first write error so components can emit markup in
// sequence without checking every call.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

// printf writes format with its non-integer arguments HTML-escaped.
func (p *page) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	escaped := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			escaped[i] = templ.EscapeString(v)
		case int, int64:
			escaped[i] = v
		default:
			escaped[i] = templ.EscapeString(fmt.Sprint(v))
		}
	}
	_, p.err = fmt.Fprintf(p.w, format, escaped...)
}

func (p *page) component(ctx context.Context, c templ.Component) {
	if p.err != nil {
		return
	}
	p.err = c.Render(ctx, p.w)
}

// Layout wraps body in the common document shell.
func Layout(title string, head string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
		p.printf("<title>%s :: Add-on Validator</title>\n", title)
		p.raw(head)
		p.raw("</head>\n<body>\n<header><h1><a href=\"/validator/\">Add-on Validator</a></h1></header>\n<main>\n")
		p.component(ctx, body)
		p.raw("</main>\n</body>\n</html>\n")
		return p.err
	})
}

// UploadPage is the form a package is submitted through. hint is one of
// HintUpload or HintAddon, or empty.
func UploadPage(csrfToken, hint string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw("<h2>Validate an add-on</h2>\n")
		if text, ok := hintText[hint]; ok {
			p.printf("<p class=\"error\" id=\"upload-error\">%s</p>\n", text)
		}
		p.raw("<form id=\"upload-form\" method=\"post\" action=\"save/\" enctype=\"multipart/form-data\">\n")
		p.printf("<input type=\"hidden\" name=\"csrfmiddlewaretoken\" value=\"%s\">\n", csrfToken)
		p.raw("<input type=\"file\" name=\"addon\" id=\"addon\" accept=\".xpi,.jar\">\n")
		p.raw("<p class=\"hint\">Choose a JAR or XPI file to validate.</p>\n")
		p.raw("<button type=\"submit\" id=\"submit\">Validate</button>\n</form>\n")
		return p.err
	})
	return Layout("Upload", "", body)
}

// StatusPage shows a queued or running job. The page refreshes itself until
// the job is done, at which point the status handler redirects to the result.
func StatusPage(taskID string, status core.JobStatus, interval int) templ.Component {
	head := "<meta http-equiv=\"refresh\" content=\"" + strconv.Itoa(interval) + "\">\n"
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw("<h2>Validating your add-on</h2>\n")
		p.printf("<div id=\"status\" data-task=\"%s\" data-poll=\"poll\">\n", taskID)
		switch status {
		case core.JobQueued:
			p.raw("<p>Your add-on is waiting in line to be validated.</p>\n")
		default:
			p.raw("<p>Your add-on is being validated.</p>\n")
		}
		p.printf("<p class=\"state\">%s</p>\n</div>\n", status)
		return p.err
	})
	return Layout("Status", head, body)
}

// ResultPage renders a finished validation.
func ResultPage(r *core.Result) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.printf("<h2>Validation results for %s</h2>\n", r.FileName)
		p.printf("<div id=\"summary\" class=\"%s\">\n", r.Class())
		switch {
		case r.Rejected:
			p.raw("<p><strong>Your add-on was rejected.</strong></p>\n")
		case r.Success:
			p.raw("<p><strong>Your add-on passed validation.</strong></p>\n")
		default:
			p.raw("<p><strong>Your add-on failed validation.</strong></p>\n")
		}
		p.printf("<p>Detected type: %s</p>\n", r.TypeLabel())
		if r.Name != "" {
			p.printf("<p>%s %s</p>\n", r.Name, r.Version)
		}
		p.printf("<ul class=\"counts\"><li>%d errors</li><li>%d warnings</li><li>%d notices</li></ul>\n",
			r.Errors, r.Warnings, r.Infos)
		p.raw("</div>\n")

		if !r.SingleType() {
			p.raw("<p class=\"filter\"><label><input type=\"checkbox\" id=\"show-notices\"> Show notices</label></p>\n")
		}

		byUID := make(map[string]core.Message, len(r.Messages))
		for _, m := range r.Messages {
			byUID[m.UID] = m
		}

		for _, module := range r.Modules() {
			node := r.MessageTree[module]
			p.printf("<section class=\"module\" data-module=\"%s\">\n<h3>%s</h3>\n", module, core.ModuleLabel(module))
			p.printf("<p class=\"module-counts\">%d errors, %d warnings, %d notices</p>\n",
				node.Errors, node.Warnings, node.Infos)
			p.raw("<ul>\n")
			for _, uid := range collectMessages(node) {
				m, ok := byUID[uid]
				if !ok {
					continue
				}
				if r.UseIDs() {
					p.printf("<li class=\"%s\" id=\"msg-%s\">", m.Type, m.UID)
				} else {
					p.printf("<li class=\"%s\">", m.Type)
				}
				p.printf("<strong>%s</strong>", m.Message)
				for _, d := range m.Description {
					p.printf("<p>%s</p>", d)
				}
				if m.File != "" {
					p.printf("<p class=\"file\">%s</p>", m.File)
				}
				p.raw("</li>\n")
			}
			p.raw("</ul>\n</section>\n")
		}
		p.raw("<p><a href=\"/validator/\">Validate another add-on</a></p>\n")
		return p.err
	})
	return Layout("Results", "", body)
}

// collectMessages walks a module subtree and returns its message UIDs.
func collectMessages(node *core.TreeNode) []string {
	if node == nil {
		return nil
	}
	uids := append([]string(nil), node.Messages...)
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uids = append(uids, collectMessages(node.Children[name])...)
	}
	return uids
}

// HistoryPage lists recent submissions.
func HistoryPage(entries []pgstore.Entry) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw("<h2>Recent submissions</h2>\n")
		if len(entries) == 0 {
			p.raw("<p>No submissions yet.</p>\n")
			return p.err
		}
		p.raw("<table>\n<thead><tr><th>File</th><th>Submitted</th><th>Type</th><th>Errors</th><th>Warnings</th><th>Outcome</th></tr></thead>\n<tbody>\n")
		for _, e := range entries {
			outcome := "pending"
			switch {
			case !e.Done():
			case e.Rejected:
				outcome = "rejected"
			case e.Success:
				outcome = "passed"
			default:
				outcome = "failed"
			}
			p.printf("<tr><td><a href=\"/validator/result/%s\">%s</a></td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%s</td></tr>\n",
				e.TaskID, e.FileName, e.Created.Format("2006-01-02 15:04:05"), e.DetectedType, e.Errors, e.Warnings, outcome)
		}
		p.raw("</tbody>\n</table>\n")
		return p.err
	})
	return Layout("History", "", body)
}

// ErrorPage is the full-page rendering of a user message.
func ErrorPage(msg core.UserMessage) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw("<div class=\"error\">\n")
		p.printf("<p><strong>%s</strong></p>\n", msg.Message)
		if msg.Action != "" {
			p.printf("<p>%s</p>\n", msg.Action)
		}
		p.printf("<p class=\"code\">Code: %s</p>\n</div>\n", msg.Code)
		return p.err
	})
	return Layout("Error", "", body)
}
