package types

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrTagTransient marks failures expected to go away on a fresh attempt:
	// network errors, rate limiting, 5xx responses and unverified uploads.
	ErrTagTransient = goerr.NewTag("transient")

	// ErrTagConflict marks a release creation that lost a race for the tag.
	ErrTagConflict = goerr.NewTag("conflict")

	// ErrTagFatal marks failures that must abort the run.
	ErrTagFatal = goerr.NewTag("fatal")
)

// ErrorClass is the retry classification of an error
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassConflict  ErrorClass = "conflict"
	ClassFatal     ErrorClass = "fatal"
)

// Classify returns the class of err. Errors carrying no tag are transient,
// including timeouts; whether the run itself was cancelled is decided by the
// caller from its own context.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case goerr.HasTag(err, ErrTagFatal):
		return ClassFatal
	case goerr.HasTag(err, ErrTagConflict):
		return ClassConflict
	default:
		return ClassTransient
	}
}

// ShouldRetry reports whether another attempt may fix err.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case ClassTransient, ClassConflict:
		return true
	default:
		return false
	}
}
