package ingest

import (
	"math"
	"strconv"
	"strings"
)

// carriers maps MCC+MNC operator codes to carrier names. It is read-only
// after package initialization. 51001 belongs to IM3; older exports also
// labelled it Telkom, which is superseded.
var carriers = map[int]string{
	51001: "IM3",
	51011: "XL",
	51009: "Smartfreen",
	51099: "Bolt",
	51089: "3ID",
}

// CarrierName returns the carrier for an operator code such as "51011".
// Codes written as floats ("51011.0") are accepted.
func CarrierName(code string) (string, bool) {
	n, ok := operatorCode(code)
	if !ok {
		return "", false
	}
	name, ok := carriers[n]
	return name, ok
}

func operatorCode(code string) (int, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(code); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(code, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
