package core

// error_messages.go maps technical errors to user-facing messages with codes
// that can be quoted when reporting a problem.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: the package exceeds the upload limit
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Bad encoding: the in-page upload could not be decoded
//	          Patterns: "malformed data uri", "illegal base64"
//
//	FILE004 - No file: no package was attached
//	          Patterns: "no file provided"
//
// # Add-on Errors (ADD001-ADD099)
//
//	ADD001 - Wrong extension: only .xpi and .jar are accepted
//	         Patterns: "not a jar or xpi"
//
//	ADD002 - Not a package: the file does not start with a ZIP signature
//	         Patterns: "not a recognized add-on package"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy: the validation queue is full
//	         Patterns: "too many concurrent uploads"
//
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Task Errors (TSK001-TSK099)
//
//	TSK001 - Task not found: unknown or expired validation task
//	         Patterns: "task not found"
//
//	TSK002 - Not ready: validation has not finished yet
//	         Patterns: "result not ready"
//
// # Request Errors
//
//	CSRF001 - Token mismatch: the form was not issued by this site
//	          Patterns: "csrf"
//
//	RATE001 - Rate limited
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the server log, which carries the
// technical error and the request ID.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The package exceeds the maximum upload size",
			Action:  "Remove unneeded files from the package and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The package exceeds the maximum upload size",
			Action:  "Remove unneeded files from the package and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "malformed data uri",
		msg: UserMessage{
			Message: "The upload could not be decoded",
			Action:  "Reload the page and upload the file again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "illegal base64",
		msg: UserMessage{
			Message: "The upload could not be decoded",
			Action:  "Reload the page and upload the file again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Choose a JAR or XPI file to validate",
			Code:    "FILE004",
		},
	},

	// Add-on errors
	{
		pattern: "not a jar or xpi",
		msg: UserMessage{
			Message: "The file does not have a .xpi or .jar extension",
			Action:  "You must choose a JAR or XPI file",
			Code:    "ADD001",
		},
	},
	{
		pattern: "not a recognized add-on package",
		msg: UserMessage{
			Message: "The file is not a recognized add-on package",
			Action:  "Make sure you are uploading the packaged add-on, not its source",
			Code:    "ADD002",
		},
	},

	// Upload errors
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "The validator is busy with other packages",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Check your connection and try again",
			Code:    "UPL005",
		},
	},

	// Task errors
	{
		pattern: "task not found",
		msg: UserMessage{
			Message: "Validation task not found",
			Action:  "Results expire after a while. Please upload the package again",
			Code:    "TSK001",
		},
	},
	{
		pattern: "result not ready",
		msg: UserMessage{
			Message: "Validation has not finished yet",
			Action:  "Wait for the status page to finish",
			Code:    "TSK002",
		},
	},

	// Request errors
	{
		pattern: "csrf",
		msg: UserMessage{
			Message: "The upload form has expired",
			Action:  "Reload the upload page and try again",
			Code:    "CSRF001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when nothing matches.
//
// Example:
//
//	msg := MapError(fmt.Errorf("save: %w", ErrBadExtension))
//	// msg.Code == "ADD001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// IsAddonError reports whether err is a rejection of the file itself, as
// opposed to a failed or malformed request. The upload page shows a
// different hint for each.
func IsAddonError(err error) bool {
	switch MapError(err).Code {
	case "ADD001", "ADD002":
		return true
	}
	return false
}
