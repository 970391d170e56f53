package iptrail

import "math"

const earthRadiusKM = 6371.0

// HaversineDistance calculates the distance in kilometers between two
// geographic coordinates using the Haversine formula.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// DistanceKM returns the distance between two records.
// ok is false when either record has no usable coordinates.
func (r GeoRecord) DistanceKM(other GeoRecord) (km float64, ok bool) {
	lat1, lng1, ok1 := r.Coordinates()
	lat2, lng2, ok2 := other.Coordinates()
	if !ok1 || !ok2 {
		return 0, false
	}
	return HaversineDistance(lat1, lng1, lat2, lng2), true
}
