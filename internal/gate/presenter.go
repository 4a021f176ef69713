package gate

import (
	"fmt"
	"io"
	"sync"
)

// Hint identifies which explanatory text is visible next to the submit control.
type Hint int

const (
	HintNone      Hint = iota // both hints hidden
	HintExtension             // "must be a .xpi or .jar file"
	HintAddon                 // "not a recognized add-on package"
)

func (h Hint) String() string {
	switch h {
	case HintExtension:
		return "ext"
	case HintAddon:
		return "addon"
	default:
		return "none"
	}
}

// Presenter is the UI projection of a SubmissionGate.
//
// ShowHint makes exactly the given hint visible and hides the other one;
// HintNone hides both.
type Presenter interface {
	SetSubmitEnabled(enabled bool)
	ShowHint(h Hint)
	Alert(msg string)
}

// Hint texts shown to the user.
const (
	HintExtensionText = "Only .xpi and .jar files can be validated."
	HintAddonText     = "The selected file does not look like an add-on package."
	ChooseValidText   = "You must choose a JAR or XPI file."
)

// Project pushes g onto p.
func Project(p Presenter, g SubmissionGate) {
	if p == nil {
		return
	}
	p.SetSubmitEnabled(g.Allowed)
	p.ShowHint(g.Hint())
}

// TextPresenter renders UI state as lines of text, for terminals.
type TextPresenter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextPresenter writes to w.
func NewTextPresenter(w io.Writer) *TextPresenter {
	return &TextPresenter{w: w}
}

func (t *TextPresenter) SetSubmitEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled {
		fmt.Fprintln(t.w, "submit: enabled")
	} else {
		fmt.Fprintln(t.w, "submit: disabled")
	}
}

func (t *TextPresenter) ShowHint(h Hint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch h {
	case HintExtension:
		fmt.Fprintln(t.w, "hint:", HintExtensionText)
	case HintAddon:
		fmt.Fprintln(t.w, "hint:", HintAddonText)
	}
}

func (t *TextPresenter) Alert(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, "error:", msg)
}
