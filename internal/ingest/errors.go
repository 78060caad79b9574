package ingest

// errors.go defines the failure taxonomy of the pipeline and the stable codes
// attached to each kind for journal entries and log lines.
//
//	ING001 - Rejected input: file name declares a non-text content type
//	         Effect: file deleted, nothing stored
//
//	ING002 - Vanished input: file disappeared before it could be processed
//	         Effect: none, the run stops quietly
//
//	ING003 - Parse error: missing column, bad timestamp, oversize file
//	         Effect: file deleted, nothing stored
//
//	ING004 - Commit error: store insert failed or timed out
//	         Effect: file left in staging or moved to the failed directory
//
//	ING005 - Archival error: backup move failed after a successful commit
//	         Effect: file left in staging, alert journaled
//
//	ERR000 - Unknown error: anything else (including recovered panics)

import (
	"errors"
	"fmt"
)

var (
	// ErrRejectedInput marks a file whose declared type is not a plain-text table.
	ErrRejectedInput = errors.New("rejected input")

	// ErrVanishedInput marks a file that no longer exists.
	ErrVanishedInput = errors.New("vanished input")
)

// ParseError reports why a file could not be read or cleansed.
type ParseError struct {
	File   string
	Line   int // 0 when the problem is not tied to a line
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.File
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// CommitError reports a failed store write.
type CommitError struct {
	File string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.File, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// ArchivalError reports a backup move that failed after the document was stored.
type ArchivalError struct {
	File string
	Err  error
}

func (e *ArchivalError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.File, e.Err)
}

func (e *ArchivalError) Unwrap() error { return e.Err }

// ErrorKind classifies a pipeline error.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRejected
	KindVanished
	KindParse
	KindCommit
	KindArchival
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRejected:
		return "rejected"
	case KindVanished:
		return "vanished"
	case KindParse:
		return "parse"
	case KindCommit:
		return "commit"
	case KindArchival:
		return "archival"
	default:
		return "unknown"
	}
}

// Classify returns the kind of err. Wrapped errors are unwrapped.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		parseErr   *ParseError
		commitErr  *CommitError
		archiveErr *ArchivalError
	)
	switch {
	case errors.Is(err, ErrRejectedInput):
		return KindRejected
	case errors.Is(err, ErrVanishedInput):
		return KindVanished
	case errors.As(err, &archiveErr):
		return KindArchival
	case errors.As(err, &commitErr):
		return KindCommit
	case errors.As(err, &parseErr):
		return KindParse
	default:
		return KindUnknown
	}
}

// ErrorInfo is the stable description of an error kind.
type ErrorInfo struct {
	Code    string
	Message string
}

var errorInfo = map[ErrorKind]ErrorInfo{
	KindRejected: {Code: "ING001", Message: "File type is not a plain-text table"},
	KindVanished: {Code: "ING002", Message: "File disappeared before processing"},
	KindParse:    {Code: "ING003", Message: "File could not be parsed"},
	KindCommit:   {Code: "ING004", Message: "Document could not be stored"},
	KindArchival: {Code: "ING005", Message: "Stored file could not be archived"},
}

var unknownInfo = ErrorInfo{Code: "ERR000", Message: "An unexpected error occurred"}

// Describe maps err to its code and message. It returns the zero value for nil.
func Describe(err error) ErrorInfo {
	kind := Classify(err)
	if kind == KindNone {
		return ErrorInfo{}
	}
	if info, ok := errorInfo[kind]; ok {
		return info
	}
	return unknownInfo
}
