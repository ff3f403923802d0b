package outcome

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Result is the tagged outcome of an operation: Success(message) or
// Failure(kind, reason).
type Result struct {
	OK      bool
	Kind    Kind
	Message string
	Err     error
}

// Success returns a successful result carrying message.
func Success(message string) Result {
	return Result{OK: true, Kind: KindNone, Message: message}
}

// Successf is Success with a format string.
func Successf(format string, args ...any) Result {
	return Success(fmt.Sprintf(format, args...))
}

// Failure converts err into a failed result. Unclassified errors are
// reported as fallback.
func Failure(fallback Kind, err error) Result {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	kind := KindOf(err, fallback)
	return Result{
		OK:      false,
		Kind:    kind,
		Message: redact(err.Error()),
		Err:     err,
	}
}

// Reason returns the human-readable failure cause, or "" for a success.
func (r Result) Reason() string {
	if r.OK {
		return ""
	}
	return r.Message
}

// String renders the result the way the UI layer shows it.
func (r Result) String() string {
	if r.OK {
		return r.Message
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

var homePattern = regexp.MustCompile(`/home/[^/\s]+`)

// redact strips the user's home directory from messages headed for the UI.
func redact(msg string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		msg = strings.ReplaceAll(msg, home, "$HOME")
	}
	return homePattern.ReplaceAllString(msg, "/home/$$USER")
}
