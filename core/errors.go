package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRuleNotFound is returned when no version of a rule identifier exists
	ErrRuleNotFound = errors.New("rule not found")
	// ErrVersionNotFound is returned when the identifier exists but the version does not
	ErrVersionNotFound = errors.New("rule version not found")
)

// ParseError reports a document that could not be decoded in its detected format.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a missing or invalid field.
type SchemaError struct {
	Path   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema error in %s: field %q %s", e.Path, e.Field, e.Reason)
	}
	return fmt.Sprintf("schema error: field %q %s", e.Field, e.Reason)
}

// DuplicateVersionError is a soft failure: the (rule_id, version) pair is already registered.
type DuplicateVersionError struct {
	RuleID  string
	Version string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("rule %s version %s already registered", e.RuleID, e.Version)
}

// ConflictSummary is the minimal view of a conflict carried by ConflictError.
type ConflictSummary struct {
	Type        string `json:"type"`
	OtherRuleID string `json:"other_rule_id"`
	Description string `json:"description"`
}

// ConflictError blocks activation of a rule with at least one error-severity conflict.
type ConflictError struct {
	RuleID    string
	Conflicts []ConflictSummary
}

func (e *ConflictError) Error() string {
	others := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		others = append(others, c.OtherRuleID)
	}
	return fmt.Sprintf("rule %s conflicts with %s", e.RuleID, strings.Join(others, ", "))
}

// TruncationDetectedError is returned when a document carries an omission placeholder.
type TruncationDetectedError struct {
	Path   string
	Marker string
	Field  string
}

func (e *TruncationDetectedError) Error() string {
	return fmt.Sprintf("document %s contains truncation marker %q in %s: content appears abbreviated; "+
		"re-submit the full content in append mode across multiple calls", e.Path, e.Marker, e.Field)
}

// IOError wraps a file system or transport failure.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrorKind returns a short classification of err for logs and metrics labels.
func ErrorKind(err error) string {
	var (
		parseErr    *ParseError
		schemaErr   *SchemaError
		dupErr      *DuplicateVersionError
		conflictErr *ConflictError
		truncErr    *TruncationDetectedError
		ioErr       *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &truncErr):
		return "truncation"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &dupErr):
		return "duplicate"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
