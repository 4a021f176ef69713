// Package gate decides whether a locally selected add-on package may be
// submitted, and keeps the submit control of the UI in sync with that
// decision.
//
// The decision is made in two steps:
//  1. Filename check: the name must end in ".xpi" or ".jar" (case-sensitive).
//  2. Content sniff: when the runtime can read file contents, the first two
//     bytes must be the ZIP local-file-header signature "PK".
//
// The sniff is asynchronous. Until it succeeds the gate stays closed, so a
// read that fails or never returns leaves submission disabled.
package gate

import "strings"

// Reason explains why submission is currently blocked.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBadExtension
	ReasonNotRecognizedPackage
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonBadExtension:
		return "bad_extension"
	case ReasonNotRecognizedPackage:
		return "not_recognized_package"
	default:
		return "unknown"
	}
}

// SubmissionGate is the allow/deny decision plus the reason behind it.
type SubmissionGate struct {
	Allowed bool
	Reason  Reason
}

var (
	// Open allows submission.
	Open = SubmissionGate{Allowed: true, Reason: ReasonNone}

	// BadExtension blocks submission because of the filename.
	BadExtension = SubmissionGate{Allowed: false, Reason: ReasonBadExtension}

	// NotRecognized blocks submission because the content is not a package.
	NotRecognized = SubmissionGate{Allowed: false, Reason: ReasonNotRecognizedPackage}
)

// Hint returns the hint text the UI should show for this gate.
func (g SubmissionGate) Hint() Hint {
	switch g.Reason {
	case ReasonBadExtension:
		return HintExtension
	case ReasonNotRecognizedPackage:
		return HintAddon
	default:
		return HintNone
	}
}

// AcceptedExtensions are the only filename suffixes that pass the fast check.
var AcceptedExtensions = []string{".xpi", ".jar"}

// PackageSignature is the ZIP local-file-header magic every package starts with.
const PackageSignature = "PK"

// minFilenameLen is one character of name plus a four character extension.
const minFilenameLen = 5

// HasAcceptedExtension reports whether filename passes the fast rejection rule.
func HasAcceptedExtension(filename string) bool {
	if len(filename) < minFilenameLen {
		return false
	}
	ext := filename[len(filename)-4:]
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// LooksLikePackage reports whether leading starts with the package signature.
func LooksLikePackage(leading []byte) bool {
	return strings.HasPrefix(string(leading), PackageSignature)
}

// Decide applies the full rule set to an already-sniffed candidate.
// contentAccess reports whether leading bytes could be read at all; when it is
// false the extension alone decides.
func Decide(filename string, contentAccess bool, leading []byte) SubmissionGate {
	if !HasAcceptedExtension(filename) {
		return BadExtension
	}
	if !contentAccess {
		return Open
	}
	if LooksLikePackage(leading) {
		return Open
	}
	return NotRecognized
}
