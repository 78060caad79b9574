package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const header = "timestamp\tlongitude\tlatitude\toperator\tnetworkmode\tdevice\tarfcn\tlevel\tqual\tdl_bitrate\tul_bitrate"

func table(lines ...string) string {
	return strings.Join(append([]string{header}, lines...), "\n") + "\n"
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// ParseTable
// =============================================================================

func TestParseTable_ScenarioRow(t *testing.T) {
	in := table("2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0")

	tbl, err := ParseTable(context.Background(), "a.txt", strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(tbl.Rows))
	}

	m := tbl.Rows[0]
	if m.Timestamp != "2023.05.01_10.00.00" {
		t.Errorf("Timestamp = %q", m.Timestamp)
	}
	if m.Longitude != 10.0 || m.Latitude != -7.0 {
		t.Errorf("coords = (%v, %v), want (10, -7)", m.Longitude, m.Latitude)
	}
	if m.Operator != "51010" {
		t.Errorf("Operator = %q, want %q", m.Operator, "51010")
	}
	if m.ARFCN != 1800 {
		t.Errorf("ARFCN = %d, want 1800", m.ARFCN)
	}
	if m.Level != "-80" || m.Qual != "20" {
		t.Errorf("Level/Qual = %q/%q, want -80/20", m.Level, m.Qual)
	}
	if m.DLBitrate != 5.0 || m.ULBitrate != 1.0 {
		t.Errorf("bitrates = %v/%v, want 5/1", m.DLBitrate, m.ULBitrate)
	}
	if m.Line != 2 {
		t.Errorf("Line = %d, want 2", m.Line)
	}
}

func TestParseTable_HeaderCaseAndExtraColumns(t *testing.T) {
	in := "TimeStamp\tLongitude\tLatitude\tOperator\tNetworkMode\tDevice\tARFCN\tLevel\tQual\tDL_Bitrate\tUL_Bitrate\tPCI\n" +
		"2023.05.01_10.00.00\t10.0\t-7.0\t51011\t3G\tDevX\t10700\t-90\t-12\t1.5\t0.5\t301\n"

	tbl, err := ParseTable(context.Background(), "a.txt", strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(tbl.Rows))
	}
	if tbl.Rows[0].NetworkMode != "3G" {
		t.Errorf("NetworkMode = %q, want 3G", tbl.Rows[0].NetworkMode)
	}
}

func TestParseTable_SkipsMalformedLines(t *testing.T) {
	in := table(
		"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0",
		"2023.05.01_10.00.01\t10.0\t-7.0\t51010", // too few fields
		"2023.05.01_10.00.02\t10.1\t-7.1\t51011\tLTE\tDevX\t1800\t-81\t19\t5.0\t1.0",
	)

	tbl, err := ParseTable(context.Background(), "a.txt", strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}
	if tbl.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", tbl.Skipped)
	}
	if tbl.Rows[1].Line != 4 {
		t.Errorf("second row Line = %d, want 4", tbl.Rows[1].Line)
	}
}

func TestParseTable_NumericCells(t *testing.T) {
	const good = "2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0"

	tests := []struct {
		name      string
		lines     []string
		wantRows  int
		skipped   int
		arfcn     Int
		dl, ul    Float
		firstLine int
	}{
		{
			name:      "empty bitrates",
			lines:     []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t\t"},
			wantRows:  1,
			arfcn:     1800,
			firstLine: 2,
		},
		{
			name:      "empty arfcn",
			lines:     []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t\t-80\t20\t5.0\t1.0"},
			wantRows:  1,
			dl:        5,
			ul:        1,
			firstLine: 2,
		},
		{
			name:      "fractional arfcn",
			lines:     []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800.0\t-80\t20\t5.0\t1.0"},
			wantRows:  1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 2,
		},
		{
			name: "bad longitude among good rows",
			lines: []string{
				"2023.05.01_10.00.00\tn/a\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0",
				good,
				good,
			},
			wantRows:  2,
			skipped:   1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 3,
		},
		{
			name:      "blank latitude",
			lines:     []string{"2023.05.01_10.00.00\t10.0\t\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0", good},
			wantRows:  1,
			skipped:   1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 3,
		},
		{
			name:      "non-numeric arfcn",
			lines:     []string{good, "2023.05.01_10.00.01\t10.0\t-7.0\t51010\t4G\tDevX\tband3\t-80\t20\t5.0\t1.0"},
			wantRows:  1,
			skipped:   1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 2,
		},
		{
			name:      "fractional arfcn with remainder",
			lines:     []string{good, "2023.05.01_10.00.01\t10.0\t-7.0\t51010\t4G\tDevX\t1800.5\t-80\t20\t5.0\t1.0"},
			wantRows:  1,
			skipped:   1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 2,
		},
		{
			name:      "non-numeric bitrate",
			lines:     []string{"2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\tfast\t1.0", good},
			wantRows:  1,
			skipped:   1,
			arfcn:     1800,
			dl:        5,
			ul:        1,
			firstLine: 3,
		},
		{
			name:     "every row bad",
			lines:    []string{"2023.05.01_10.00.00\twest\tsouth\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0"},
			wantRows: 0,
			skipped:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParseTable(context.Background(), "a.txt", strings.NewReader(table(tt.lines...)))
			if err != nil {
				t.Fatalf("ParseTable() error = %v", err)
			}
			if len(tbl.Rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(tbl.Rows), tt.wantRows)
			}
			if tbl.Skipped != tt.skipped {
				t.Errorf("Skipped = %d, want %d", tbl.Skipped, tt.skipped)
			}
			if tt.wantRows == 0 {
				return
			}
			m := tbl.Rows[0]
			if m.ARFCN != tt.arfcn {
				t.Errorf("ARFCN = %d, want %d", m.ARFCN, tt.arfcn)
			}
			if m.DLBitrate != tt.dl || m.ULBitrate != tt.ul {
				t.Errorf("bitrates = %v/%v, want %v/%v", m.DLBitrate, m.ULBitrate, tt.dl, tt.ul)
			}
			if m.Line != tt.firstLine {
				t.Errorf("Line = %d, want %d", m.Line, tt.firstLine)
			}
		})
	}
}

func TestNumericCells_Unmarshal(t *testing.T) {
	ints := []struct {
		in      string
		want    Int
		wantErr bool
	}{
		{"1800", 1800, false},
		{" 1800.0 ", 1800, false},
		{"", 0, false},
		{"1800.5", 0, true},
		{"band3", 0, true},
		{"1e12", 0, true},
		{"NaN", 0, true},
	}
	for _, tt := range ints {
		t.Run("int "+tt.in, func(t *testing.T) {
			var n Int
			err := n.UnmarshalCSV([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalCSV(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && n != tt.want {
				t.Errorf("UnmarshalCSV(%q) = %d, want %d", tt.in, n, tt.want)
			}
		})
	}

	floats := []struct {
		in      string
		want    Float
		wantErr bool
	}{
		{"5.5", 5.5, false},
		{"", 0, false},
		{"  ", 0, false},
		{"-1", -1, false},
		{"fast", 0, true},
		{"Inf", 0, true},
	}
	for _, tt := range floats {
		t.Run("float "+tt.in, func(t *testing.T) {
			var f Float
			err := f.UnmarshalCSV([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalCSV(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && f != tt.want {
				t.Errorf("UnmarshalCSV(%q) = %v, want %v", tt.in, f, tt.want)
			}
		})
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "empty file",
		},
		{
			name: "missing column",
			in:   "timestamp\tlongitude\tlatitude\toperator\tnetworkmode\tdevice\tarfcn\tlevel\tqual\tdl_bitrate\n",
			want: "missing required column(s): ul_bitrate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(context.Background(), "a.txt", strings.NewReader(tt.in))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("ParseTable() error = %v, want *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseTable_HeaderOnly(t *testing.T) {
	tbl, err := ParseTable(context.Background(), "a.txt", strings.NewReader(header+"\n"))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(tbl.Rows) != 0 {
		t.Errorf("got %d rows, want 0", len(tbl.Rows))
	}
}

// =============================================================================
// ReadTable
// =============================================================================

func TestReadTable_BOMAndChecksum(t *testing.T) {
	dir := t.TempDir()
	body := table("2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDevX\t1800\t-80\t20\t5.0\t1.0")
	plain := writeFile(t, dir, "plain.txt", []byte(body))
	bom := writeFile(t, dir, "bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, body...))

	a, err := ReadTable(context.Background(), plain)
	if err != nil {
		t.Fatalf("ReadTable(plain) error = %v", err)
	}
	b, err := ReadTable(context.Background(), bom)
	if err != nil {
		t.Fatalf("ReadTable(bom) error = %v", err)
	}

	if len(b.Rows) != 1 {
		t.Fatalf("BOM file: got %d rows, want 1", len(b.Rows))
	}
	if len(a.Checksum) != 64 {
		t.Errorf("Checksum = %q, want 64 hex chars", a.Checksum)
	}
	if a.Checksum == b.Checksum {
		t.Error("different bytes produced the same checksum")
	}
}

func TestReadTable_Windows1252(t *testing.T) {
	// 0xC9 is É in Windows-1252 and invalid on its own in UTF-8.
	body := table("2023.05.01_10.00.00\t10.0\t-7.0\t51010\t4G\tDev\xC9\t1800\t-80\t20\t5.0\t1.0")
	path := writeFile(t, t.TempDir(), "cp.txt", []byte(body))

	tbl, err := ReadTable(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if got := tbl.Rows[0].Device; got != "DevÉ" {
		t.Errorf("Device = %q, want %q", got, "DevÉ")
	}
}

func TestReadTable_Missing(t *testing.T) {
	_, err := ReadTable(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if !errors.Is(err, ErrVanishedInput) {
		t.Errorf("ReadTable() error = %v, want ErrVanishedInput", err)
	}
}
