package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampLayout is the export timestamp format (YYYY.MM.DD_HH.MM.SS).
	TimestampLayout = "2006.01.02_15.04.05"

	// DateLayout is the derived calendar date format.
	DateLayout = "2006-01-02"
)

// Noise signature: a 2G reading at -113 dBm means "no signal".
const (
	noiseMode  = "2G"
	noiseLevel = -113
)

// Cleanse converts parsed measurements into stored rows. A timestamp that
// does not match TimestampLayout fails the whole table.
func Cleanse(name string, ms []Measurement) ([]Row, error) {
	rows := make([]Row, 0, len(ms))
	for _, m := range ms {
		row, err := toRow(m)
		if err != nil {
			return nil, &ParseError{File: name, Line: m.Line, Reason: "invalid timestamp", Err: err}
		}
		rows = append(rows, row)
	}
	return Normalize(rows), nil
}

// toRow parses the timestamp and coerces level and quality.
func toRow(m Measurement) (Row, error) {
	ts, err := time.Parse(TimestampLayout, strings.TrimSpace(m.Timestamp))
	if err != nil {
		return Row{}, err
	}

	return Row{
		Timestamp:   ts,
		Date:        ts.Format(DateLayout),
		Longitude:   m.Longitude,
		Latitude:    m.Latitude,
		Operator:    strings.TrimSpace(m.Operator),
		NetworkMode: strings.TrimSpace(m.NetworkMode),
		Device:      m.Device,
		ARFCN:       int(m.ARFCN),
		Level:       coerceInt(m.Level),
		Qual:        coerceInt(m.Qual),
		DLBitrate:   float64(m.DLBitrate),
		ULBitrate:   float64(m.ULBitrate),
	}, nil
}

// Normalize rewrites 4G to LTE, drops noise rows and resolves carrier names.
// It does not touch the input slice and is idempotent.
func Normalize(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.NetworkMode == "4G" {
			r.NetworkMode = "LTE"
		}
		if r.NetworkMode == noiseMode && r.Level == noiseLevel {
			continue
		}
		r.OpName = nil
		if name, ok := CarrierName(r.Operator); ok {
			r.OpName = &name
		}
		out = append(out, r)
	}
	return out
}

// coerceInt parses an integer reading. Decimal values are truncated toward
// zero and anything unparsable becomes 0.
func coerceInt(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}
