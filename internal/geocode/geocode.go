// Package geocode resolves coordinates to city names for row enrichment.
package geocode

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no place name can be determined.
var ErrUnavailable = errors.New("geocode unavailable")

// Nop never resolves anything. It is the default when enrichment is disabled.
type Nop struct{}

func (Nop) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", ErrUnavailable
}
