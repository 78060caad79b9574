package ingest

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyAndDescribe(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantCode string
	}{
		{"nil", nil, KindNone, ""},
		{"rejected", fmt.Errorf("a.jpg: %w", ErrRejectedInput), KindRejected, "ING001"},
		{"vanished", fmt.Errorf("a.txt: %w", ErrVanishedInput), KindVanished, "ING002"},
		{"parse", &ParseError{File: "a.txt", Reason: "empty file"}, KindParse, "ING003"},
		{"commit", &CommitError{File: "a.txt", Err: base}, KindCommit, "ING004"},
		{"archival", &ArchivalError{File: "a.txt", Err: base}, KindArchival, "ING005"},
		{"wrapped commit", fmt.Errorf("task: %w", &CommitError{Err: base}), KindCommit, "ING004"},
		{"unknown", base, KindUnknown, "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.wantKind {
				t.Errorf("Classify() = %v, want %v", got, tt.wantKind)
			}
			if got := Describe(tt.err).Code; got != tt.wantCode {
				t.Errorf("Describe().Code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{File: "a.txt", Line: 3, Reason: "invalid timestamp", Err: errors.New("bad")}
	want := "parse a.txt line 3: invalid timestamp: bad"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
