package ingest

import (
	"context"
	"errors"
	"fmt"
)

// Enricher adds optional context to cleansed rows. Implementations must not
// drop or reorder rows. An error means some rows stay unenriched; the
// pipeline logs it and carries on.
type Enricher interface {
	Enrich(ctx context.Context, rows []Row) error
}

// NopEnricher leaves rows untouched.
type NopEnricher struct{}

func (NopEnricher) Enrich(context.Context, []Row) error { return nil }

// Geocoder resolves a coordinate to a place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// CityEnricher fills Row.City through a Geocoder.
type CityEnricher struct {
	Geocoder Geocoder
}

// Enrich looks up every row. Failed lookups leave City empty; it stops early
// only when ctx is done.
func (e CityEnricher) Enrich(ctx context.Context, rows []Row) error {
	var failed int
	var firstErr error
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		city, err := e.Geocoder.ReverseGeocode(ctx, rows[i].Latitude, rows[i].Longitude)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rows[i].City = city
	}
	if failed > 0 {
		return fmt.Errorf("geocode: %d of %d rows failed: %w", failed, len(rows), firstErr)
	}
	return nil
}
