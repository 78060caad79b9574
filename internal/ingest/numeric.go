package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is an optional numeric cell. Field tools leave bitrate columns blank
// when no transfer ran, so an empty cell decodes as 0.
type Float float64

func (f *Float) UnmarshalCSV(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = Float(v)
	return nil
}

// Int is an optional integer cell. Exports that went through a spreadsheet
// write integers as "1800.0"; those are accepted when the fraction is zero.
// An empty cell decodes as 0.
type Int int

func (n *Int) UnmarshalCSV(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*n = 0
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		*n = Int(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
		return fmt.Errorf("not an integer: %q", s)
	}
	*n = Int(v)
	return nil
}
