package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WarehouseFields are the keys a stored row must carry, non-null, to appear
// in the warehouse view.
var WarehouseFields = []string{
	"timestamp", "date", "longitude", "latitude", "city", "operator",
	"networkmode", "device", "arfcn", "level", "qual", "dl_bitrate", "ul_bitrate",
}

// WarehouseRow is the flattened reporting shape of one stored row.
type WarehouseRow struct {
	Timestamp   time.Time `json:"timestamp"`
	Date        string    `json:"date"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	City        string    `json:"city"`
	Operator    string    `json:"operator"`
	NetworkMode string    `json:"networkmode"`
	Device      string    `json:"device"`
	ARFCN       int64     `json:"arfcn"`
	Level       int64     `json:"level"`
	Qual        int64     `json:"qual"`
	DLBitrate   float64   `json:"dl_bitrate"`
	ULBitrate   float64   `json:"ul_bitrate"`
}

// ProjectWarehouse flattens the data arrays of stored documents. Rows missing
// a required field, or holding a value of the wrong type, are dropped.
// Documents that are not valid JSON arrays are an error.
func ProjectWarehouse(docs [][]byte) ([]WarehouseRow, int, error) {
	out := []WarehouseRow{}
	dropped := 0

	for i, raw := range docs {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, 0, fmt.Errorf("document %d: %w", i, err)
		}
		for _, r := range rows {
			wr, ok := projectRow(r)
			if !ok {
				dropped++
				continue
			}
			out = append(out, wr)
		}
	}
	return out, dropped, nil
}

func projectRow(r map[string]any) (WarehouseRow, bool) {
	for _, k := range WarehouseFields {
		if v, ok := r[k]; !ok || v == nil {
			return WarehouseRow{}, false
		}
	}

	var (
		wr WarehouseRow
		ok = true
	)
	str := func(k string) string {
		s, isStr := r[k].(string)
		ok = ok && isStr
		return s
	}
	num := func(k string) float64 {
		n, isNum := r[k].(json.Number)
		if !isNum {
			ok = false
			return 0
		}
		f, err := n.Float64()
		ok = ok && err == nil
		return f
	}
	integer := func(k string) int64 {
		n, isNum := r[k].(json.Number)
		if !isNum {
			ok = false
			return 0
		}
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			ok = ok && ferr == nil
			return int64(f)
		}
		return i
	}

	ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
	ok = ok && err == nil
	wr.Timestamp = ts
	wr.Date = str("date")
	wr.Longitude = num("longitude")
	wr.Latitude = num("latitude")
	wr.City = str("city")
	wr.Operator = operatorString(r["operator"])
	wr.NetworkMode = str("networkmode")
	wr.Device = str("device")
	wr.ARFCN = integer("arfcn")
	wr.Level = integer("level")
	wr.Qual = integer("qual")
	wr.DLBitrate = num("dl_bitrate")
	wr.ULBitrate = num("ul_bitrate")

	return wr, ok
}

// operatorString renders an operator code as text with thousands separators
// removed ("51,011" becomes "51011").
func operatorString(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	return strings.ReplaceAll(s, ",", "")
}
