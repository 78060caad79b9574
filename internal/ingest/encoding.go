package ingest

// encoding.go normalizes raw export bytes to UTF-8 before CSV decoding.
//
// Exports come from field tools running on Windows, so two artifacts show up:
//
//   - a UTF-8 byte order mark (0xEF 0xBB 0xBF) ahead of the header
//   - Windows-1252 text (degree signs, accented place names) that is not UTF-8
//
// The whole file is inspected at once; ReadTable caps its size first.

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// toUTF8 strips a leading BOM and decodes non-UTF-8 content as Windows-1252.
// The second return reports whether a transcode happened.
func toUTF8(data []byte) ([]byte, bool, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, false, nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}
