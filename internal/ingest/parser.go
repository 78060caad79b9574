package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/JonMunkholm/celllog/internal/logging"
)

// MaxFileSize is the largest export ReadTable accepts (100MB).
const MaxFileSize = 100 << 20

// Delimiter separates columns in an export.
const Delimiter = '\t'

// ReadTable reads and parses the export at path.
func ReadTable(ctx context.Context, path string) (*Table, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrVanishedInput)
		}
		return nil, &ParseError{File: name, Reason: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ParseError{File: name, Reason: "stat", Err: err}
	}
	if info.Size() > MaxFileSize {
		return nil, &ParseError{File: name, Reason: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), MaxFileSize)}
	}

	// The file may still be growing; never read past the cap.
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, &ParseError{File: name, Reason: "read", Err: err}
	}
	if len(data) > MaxFileSize {
		return nil, &ParseError{File: name, Reason: fmt.Sprintf("file too large (max %d bytes)", MaxFileSize)}
	}

	sum := sha256.Sum256(data)

	text, transcoded, err := toUTF8(data)
	if err != nil {
		return nil, &ParseError{File: name, Reason: "encoding error", Err: err}
	}
	if transcoded {
		logging.FromContext(ctx).Info("decoded export as windows-1252", "file", name)
	}

	table, err := ParseTable(ctx, name, bytes.NewReader(text))
	if err != nil {
		return nil, err
	}
	table.Checksum = hex.EncodeToString(sum[:])
	return table, nil
}

// ParseTable decodes a tab-separated export with a header row. Header names
// are matched case-insensitively and every column in RequiredColumns must be
// present; other columns are ignored. Lines with the wrong number of fields,
// broken quoting or a value that does not fit its column are skipped with a
// warning and counted in Table.Skipped. Blank bitrate and arfcn cells are 0.
func ParseTable(ctx context.Context, name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.LazyQuotes = true
	// FieldsPerRecord stays 0 so the header fixes the expected width.

	raw, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{File: name, Reason: "empty file"}
		}
		return nil, &ParseError{File: name, Line: 1, Reason: "invalid header", Err: err}
	}

	header := make([]string, len(raw))
	for i, col := range raw {
		header[i] = normalizeHeader(col)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, &ParseError{
			File:   name,
			Line:   1,
			Reason: "missing required column(s): " + strings.Join(missing, ", "),
		}
	}

	src := &lineSkipper{r: cr, name: name, logger: logging.FromContext(ctx)}
	dec, err := csvutil.NewDecoder(src, header...)
	if err != nil {
		return nil, &ParseError{File: name, Line: 1, Reason: "invalid header", Err: err}
	}
	dec.Map = func(field, _ string, _ any) string {
		return strings.TrimSpace(field)
	}

	table := &Table{}
	for {
		var m Measurement
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if src.err != nil {
				return nil, &ParseError{File: name, Line: src.line, Reason: "read", Err: err}
			}
			// A non-numeric coordinate or reading costs the line, not the file.
			src.skipped++
			src.logger.Warn("skipping line with invalid value",
				"file", name,
				"line", src.line,
				"error", err,
			)
			continue
		}
		m.Line = src.line
		table.Rows = append(table.Rows, m)
	}
	table.Skipped = src.skipped

	return table, nil
}

// normalizeHeader lowercases a header cell and strips the quoting and
// formula artifacts spreadsheet tools leave behind.
func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.Trim(s, `"'`)
	return strings.ToLower(strings.TrimSpace(s))
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// lineSkipper feeds records to csvutil, dropping lines encoding/csv rejects.
type lineSkipper struct {
	r       *csv.Reader
	name    string
	logger  *slog.Logger
	line    int
	skipped int
	err     error // last read failure other than a malformed line
}

func (s *lineSkipper) Read() ([]string, error) {
	for {
		rec, err := s.r.Read()
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			s.skipped++
			s.logger.Warn("skipping malformed line",
				"file", s.name,
				"line", perr.StartLine,
				"error", perr.Err,
			)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return nil, err
		}
		s.line, _ = s.r.FieldPos(0)
		return rec, nil
	}
}
