package outcome

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNone is the kind of a successful result.
	KindNone Kind = iota
	// KindNetwork covers failed fetches, non-2xx responses and failed image pulls.
	KindNetwork
	// KindArchive covers corrupt or incomplete archives and extraction failures.
	KindArchive
	// KindPermission covers failures to write or mark the installed binary executable.
	KindPermission
	// KindSpawn covers failures to launch a process.
	KindSpawn
	// KindInvalidInput covers empty or malformed caller input.
	KindInvalidInput
	// KindVerification covers checksum, signature and bundle mismatches.
	KindVerification
	// KindBusy means another process holds the installation lock.
	KindBusy
	// KindCanceled means the caller's context was cancelled or expired.
	KindCanceled
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindNetwork:
		return "NetworkError"
	case KindArchive:
		return "ArchiveError"
	case KindPermission:
		return "PermissionError"
	case KindSpawn:
		return "SpawnError"
	case KindInvalidInput:
		return "InvalidInputError"
	case KindVerification:
		return "VerificationError"
	case KindBusy:
		return "BusyError"
	case KindCanceled:
		return "CanceledError"
	default:
		return "UnknownError"
	}
}

// Sentinel errors, one per kind, for errors.Is checks.
var (
	ErrNetwork      = errors.New("network error")
	ErrArchive      = errors.New("archive error")
	ErrPermission   = errors.New("permission error")
	ErrSpawn        = errors.New("spawn error")
	ErrInvalidInput = errors.New("invalid input")
	ErrVerification = errors.New("verification failed")
	ErrBusy         = errors.New("update already in progress")
	ErrCanceled     = errors.New("operation cancelled")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindArchive:
		return ErrArchive
	case KindPermission:
		return ErrPermission
	case KindSpawn:
		return ErrSpawn
	case KindInvalidInput:
		return ErrInvalidInput
	case KindVerification:
		return ErrVerification
	case KindBusy:
		return ErrBusy
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// Error is a classified failure. It preserves the wrapped error chain for
// errors.Is/errors.As and also matches the sentinel of its Kind.
type Error struct {
	Kind Kind
	Op   string // short description of the failing step, e.g. "download archive"
	Err  error
}

// Error returns "op: cause".
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Wrap classifies err as kind. A nil err yields nil. An err that is already
// classified keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		if op == "" {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Unclassified context errors map to
// KindCanceled; anything else unclassified falls back to fallback.
func KindOf(err error, fallback Kind) Kind {
	if err == nil {
		return KindNone
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return fallback
}
