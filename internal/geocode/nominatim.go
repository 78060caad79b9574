package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/s2"
)

// DefaultCellLevel groups lookups into S2 cells roughly 10km across.
const DefaultCellLevel = 10

// Options configure a Nominatim client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CellLevel int
	Client    *http.Client // optional
}

// Nominatim reverse-geocodes through an OpenStreetMap Nominatim server.
// Results are cached per S2 cell, so a drive test along one road costs a
// handful of requests instead of one per row.
type Nominatim struct {
	base      string
	userAgent string
	level     int
	client    *http.Client

	mu    sync.RWMutex
	cache map[s2.CellID]string
}

// NewNominatim creates a client.
func NewNominatim(opts Options) *Nominatim {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	level := opts.CellLevel
	if level <= 0 || level > s2.MaxLevel {
		level = DefaultCellLevel
	}
	return &Nominatim{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		level:     level,
		client:    client,
		cache:     make(map[s2.CellID]string),
	}
}

type reverseResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
	Error string `json:"error"`
}

// ReverseGeocode returns the upper-cased city for a coordinate.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	ll := s2.LatLngFromDegrees(lat, lon)
	if !ll.IsValid() {
		return "", fmt.Errorf("%w: invalid coordinate (%v, %v)", ErrUnavailable, lat, lon)
	}
	cell := s2.CellIDFromLatLng(ll).Parent(n.level)

	n.mu.RLock()
	city, ok := n.cache[cell]
	n.mu.RUnlock()
	if ok {
		if city == "" {
			return "", ErrUnavailable
		}
		return city, nil
	}

	city, err := n.lookup(ctx, lat, lon)
	if err != nil {
		return "", err
	}

	// Cache misses too, so an empty area is asked about only once.
	n.mu.Lock()
	n.cache[cell] = city
	n.mu.Unlock()

	if city == "" {
		return "", ErrUnavailable
	}
	return city, nil
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("zoom", "8")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if body.Error != "" {
		return "", nil
	}

	for _, name := range []string{body.Address.City, body.Address.Town, body.Address.Village} {
		if name = strings.TrimSpace(name); name != "" {
			return strings.ToUpper(name), nil
		}
	}
	return "", nil
}
