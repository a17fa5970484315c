// Package logfile persists dialog log records as JSON documents, one file
// per exam session, and reads them back with full consistency checking.
package logfile

import "fmt"

// WriteError reports a failure to persist a dialog log record. It wraps the
// underlying cause, which may be a validation error, a filesystem error, or
// a refusal to overwrite an existing file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write dialog log: %v", e.Err)
	}
	return fmt.Sprintf("write dialog log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ParseError reports a file whose content is not a dialog log document at
// all: unreadable JSON or a required field that is absent entirely.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse dialog log: %v", e.Err)
	}
	return fmt.Sprintf("parse dialog log %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a structurally valid document whose field values
// violate the dialog log consistency rules, such as statistics that do not
// match the recorded answers or a gap in the question numbering.
type SchemaError struct {
	Path   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid dialog log: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid dialog log %s: %s: %s", e.Path, e.Field, e.Reason)
}
