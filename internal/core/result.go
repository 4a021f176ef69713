package core

import (
	"sort"
	"strconv"
	"time"
)

// MessageType is the severity of a validation message.
type MessageType string

const (
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
	MessageNotice  MessageType = "notice"
)

// Message is one finding of a validation run. ID is the path of the test
// that produced it: module, test, and detail.
type Message struct {
	UID         string      `json:"uid"`
	ID          []string    `json:"id"`
	Type        MessageType `json:"type"`
	Message     string      `json:"message"`
	Description []string    `json:"description,omitempty"`
	File        string      `json:"file,omitempty"`
	Line        int         `json:"line,omitempty"`
}

// TreeNode counts messages below one module or test.
type TreeNode struct {
	Errors   int                  `json:"errors"`
	Warnings int                  `json:"warnings"`
	Infos    int                  `json:"infos"`
	Messages []string             `json:"messages"`
	Children map[string]*TreeNode `json:"children,omitempty"`
}

// Result is the outcome of inspecting one package.
type Result struct {
	TaskID       string               `json:"task_id"`
	FileName     string               `json:"file_name"`
	DetectedType string               `json:"detected_type"`
	AddonID      string               `json:"addon_id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Version      string               `json:"version,omitempty"`
	Errors       int                  `json:"errors"`
	Warnings     int                  `json:"warnings"`
	Infos        int                  `json:"infos"`
	Success      bool                 `json:"success"`
	Rejected     bool                 `json:"rejected"`
	Messages     []Message            `json:"messages"`
	MessageTree  map[string]*TreeNode `json:"message_tree"`
	Completed    time.Time            `json:"completed"`
}

func newResult() *Result {
	return &Result{
		DetectedType: TypeUnknown,
		Messages:     []Message{},
		MessageTree:  map[string]*TreeNode{},
	}
}

func (r *Result) add(typ MessageType, id []string, msg string, desc ...string) *Message {
	m := Message{
		UID:         strconv.Itoa(len(r.Messages) + 1),
		ID:          id,
		Type:        typ,
		Message:     msg,
		Description: desc,
	}

	children := r.MessageTree
	for _, key := range id {
		node, ok := children[key]
		if !ok {
			node = &TreeNode{Messages: []string{}}
			children[key] = node
		}
		switch typ {
		case MessageError:
			node.Errors++
		case MessageWarning:
			node.Warnings++
		default:
			node.Infos++
		}
		node.Messages = append(node.Messages, m.UID)
		if node.Children == nil {
			node.Children = map[string]*TreeNode{}
		}
		children = node.Children
	}

	switch typ {
	case MessageError:
		r.Errors++
	case MessageWarning:
		r.Warnings++
	default:
		r.Infos++
	}

	r.Messages = append(r.Messages, m)
	return &r.Messages[len(r.Messages)-1]
}

func (r *Result) reject(id []string, msg string, desc ...string) {
	r.add(MessageError, id, msg, desc...)
	r.Rejected = true
}

func (r *Result) finish() {
	r.Success = r.Errors == 0 && !r.Rejected
	r.Completed = time.Now().UTC()
}

// Class is the CSS class of the summary box: "rejected", "errors", or empty
// for a clean run.
func (r *Result) Class() string {
	switch {
	case r.Rejected:
		return "rejected"
	case !r.Success:
		return "errors"
	}
	return ""
}

// TypeLabel is the display name of the detected add-on type.
func (r *Result) TypeLabel() string {
	if label, ok := typeLabels[r.DetectedType]; ok {
		return label
	}
	return typeLabels[TypeUnknown]
}

// SingleType reports whether exactly one of errors, warnings, and notices
// occurred. The result page hides the severity filter then.
func (r *Result) SingleType() bool {
	kinds := 0
	for _, n := range []int{r.Errors, r.Warnings, r.Infos} {
		if n > 0 {
			kinds++
		}
	}
	return kinds == 1
}

// UseIDs reports whether messages are numerous enough to need anchors.
func (r *Result) UseIDs() bool {
	return r.Errors+r.Warnings+r.Infos > 2
}

// Modules returns the top-level message tree keys in display order.
func (r *Result) Modules() []string {
	keys := make([]string, 0, len(r.MessageTree))
	for k := range r.MessageTree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Detected add-on types.
const (
	TypeUnknown    = "unknown"
	TypeExtension  = "extension"
	TypeTheme      = "theme"
	TypeDictionary = "dictionary"
	TypeLangpack   = "langpack"
	TypeSearch     = "search"
)

var typeLabels = map[string]string{
	TypeUnknown:    "Unknown",
	TypeExtension:  "Extension",
	TypeTheme:      "Theme",
	TypeDictionary: "Dictionary",
	TypeLangpack:   "Language Pack",
	TypeSearch:     "Search Provider",
}

var moduleLabels = map[string]string{
	"chromemanifest":                "Chrome Manifest",
	"main":                          "General Tests",
	"rdf":                           "RDF Tests",
	"typedetection":                 "Add-on Type Detection",
	"xpi":                           "XPI Parser",
	"testcases_conduit":             "Conduit Testing",
	"testcases_content":             "Package Content",
	"testcases_installrdf":          "install.rdf Tests",
	"testcases_l10ncompleteness":    "L10n Completeness",
	"testcases_langpack":            "Language Pack Tests",
	"testcases_library_blacklist":   "Library Blacklists",
	"testcases_packagelayout":       "Package Layout",
	"testcases_targetapplication":   "Target Application Tests",
	"testcases_themes":              "Theme Tests",
	"testcases_l10n_dtd":            "DTD File Tests",
	"testcases_l10n_properties":     "Properties File Tests",
	"testcases_markup_csstester":    "CSS Tests",
	"testcases_markup_markuptester": "Markup Tests",
}

// ModuleLabel is the display name of a test module; unknown names are
// returned unchanged.
func ModuleLabel(name string) string {
	if label, ok := moduleLabels[name]; ok {
		return label
	}
	return name
}
