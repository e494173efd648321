package geo

import "math"

// EarthRadius is the fixed sphere radius used by the GPS projection.
const EarthRadius = 6353000.0

// Reference is an azimuthal equidistant projection centred on a home position.
type Reference struct {
	home   LLA
	lat    float64
	lon    float64
	sinLat float64
	cosLat float64
}

// NewReference creates a projection centred on home.
func NewReference(home LLA) *Reference {
	lat := home.Lat * math.Pi / 180
	return &Reference{
		home:   home,
		lat:    lat,
		lon:    home.Lon * math.Pi / 180,
		sinLat: math.Sin(lat),
		cosLat: math.Cos(lat),
	}
}

// Home returns the projection centre.
func (r *Reference) Home() LLA {
	return r.home
}

// Project maps a geodetic position onto the tangent plane, returning the
// north and east offsets in metres.
func (r *Reference) Project(lat, lon float64) (north, east float64) {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	sinLat, cosLat := math.Sin(latRad), math.Cos(latRad)
	cosDLon := math.Cos(lonRad - r.lon)

	arg := r.sinLat*sinLat + r.cosLat*cosLat*cosDLon
	arg = math.Max(-1, math.Min(1, arg))
	c := math.Acos(arg)

	k := 1.0
	if math.Abs(c) > 0 {
		k = c / math.Sin(c)
	}

	north = k * (r.cosLat*sinLat - r.sinLat*cosLat*cosDLon) * EarthRadius
	east = k * cosLat * math.Sin(lonRad-r.lon) * EarthRadius
	return north, east
}

// Reproject is the inverse of Project.
func (r *Reference) Reproject(north, east float64) (lat, lon float64) {
	x := north / EarthRadius
	y := east / EarthRadius
	c := math.Hypot(x, y)
	if c == 0 {
		return r.home.Lat, r.home.Lon
	}
	sinC, cosC := math.Sin(c), math.Cos(c)

	latRad := math.Asin(cosC*r.sinLat + x*sinC*r.cosLat/c)
	lonRad := r.lon + math.Atan2(y*sinC, c*r.cosLat*cosC-x*r.sinLat*sinC)
	return latRad * 180 / math.Pi, lonRad * 180 / math.Pi
}
