package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Recorded positions are stored as EPSG:3857 with the altitude in Z. SQLite has no spatial
// awareness, so everything is kept in one projected SRID and written as WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// LLA is a geodetic position: degrees and metres above the ellipsoid.
type LLA struct {
	Lat float64 `json:"lat" mapstructure:"lat"`
	Lon float64 `json:"lon" mapstructure:"lon"`
	Alt float64 `json:"alt" mapstructure:"alt"`
}

// Valid reports whether the position is inside the geodetic domain.
func (p LLA) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p LLA) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.2f", p.Lat, p.Lon, p.Alt)
}

// ParseLLA parses "lat,lon" or "lat,lon,alt".
func ParseLLA(s string) (LLA, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return LLA{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return LLA{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	p := LLA{Lat: vals[0], Lon: vals[1], Alt: vals[2]}
	if !p.Valid() {
		return LLA{}, ErrInvalidCoordinates
	}
	return p, nil
}

// Point3857 converts a geodetic position to a web-mercator point carrying
// the altitude as Z.
func Point3857(p LLA) (geom.Point, error) {
	if !p.Valid() {
		return geom.NewEmptyPoint(geom.DimXYZ), ErrInvalidCoordinates
	}
	x, y, _ := wgs84.EPSG().Transform(4326, 3857)(p.Lon, p.Lat, 0)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Z:    p.Alt,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ), fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

// Track builds a 3857 line string from a sequence of positions.
func Track(points []LLA) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*3)
	for i, p := range points {
		pt, err := Point3857(p)
		if err != nil {
			return geom.LineString{}, fmt.Errorf("point %d: %w", i, err)
		}
		c, _ := pt.Coordinates()
		flat = append(flat, c.X, c.Y, c.Z)
	}

	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("track: %w", err)
	}
	return ls, nil
}
