package iptrail

import (
	"strconv"
	"strings"
)

// GeoRecord is one resolved geolocation lookup.
// Empty fields mean the provider had no data; they are never filled in locally.
type GeoRecord struct {
	IP       string `json:"ip"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Loc      string `json:"loc,omitempty"` // "lat,lng"
	Org      string `json:"org,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Coordinates parses Loc. ok is false when Loc is absent or malformed.
func (r GeoRecord) Coordinates() (lat, lng float64, ok bool) {
	latStr, lngStr, found := strings.Cut(r.Loc, ",")
	if !found {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// HistoryEntry is the server's durable record of a past lookup.
type HistoryEntry struct {
	ID        ID     `json:"id"`
	IPAddress string `json:"ip_address"`
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Location  string `json:"location,omitempty"`
	Org       string `json:"org,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Record rebuilds the GeoRecord stored in this entry.
func (e HistoryEntry) Record() GeoRecord {
	return GeoRecord{
		IP:       e.IPAddress,
		City:     e.City,
		Region:   e.Region,
		Country:  e.Country,
		Loc:      e.Location,
		Org:      e.Org,
		Timezone: e.Timezone,
	}
}
