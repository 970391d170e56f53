package iptrail

import (
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader resolves addresses offline using a MaxMind GeoLite2-City database.
type GeoIPReader struct {
	db   *geoip2.Reader
	path string
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}

	return &GeoIPReader{
		db:   db,
		path: dbPath,
	}, nil
}

// Lookup returns a GeoRecord for an IPv4 address.
// Private and loopback addresses resolve to a record holding only the IP.
func (r *GeoIPReader) Lookup(ip string) (*GeoRecord, error) {
	if r == nil || r.db == nil {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	if !IsValidIPv4(ip) {
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidInput, ip)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidInput, ip)
	}
	if IsPrivateIP(ip) {
		return &GeoRecord{IP: ip}, nil
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	rec := &GeoRecord{
		IP:       ip,
		City:     englishName(record.City.Names),
		Country:  englishName(record.Country.Names),
		Timezone: record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		rec.Region = englishName(record.Subdivisions[0].Names)
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		rec.Loc = strconv.FormatFloat(record.Location.Latitude, 'f', 4, 64) + "," +
			strconv.FormatFloat(record.Location.Longitude, 'f', 4, 64)
	}
	return rec, nil
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// englishName prefers the English name and falls back to any available one.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}
