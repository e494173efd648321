package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// First-degree IGRF-13 coefficients (epoch 2020), nT.
const (
	igrfG10 = -29404.8
	igrfG11 = -1450.9
	igrfH11 = 4652.5
)

// MagneticField returns the geomagnetic field at the surface in the local NED
// frame, in Gauss, using a tilted dipole.
func MagneticField(lat, lon float64) r3.Vec {
	theta := (90 - lat) * math.Pi / 180
	phi := lon * math.Pi / 180
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	sinP, cosP := math.Sin(phi), math.Cos(phi)

	eq := igrfG11*cosP + igrfH11*sinP
	br := 2 * (igrfG10*cosT + eq*sinT)
	bt := igrfG10*sinT - eq*cosT
	bp := igrfG11*sinP - igrfH11*cosP

	const nTToGauss = 1e-5
	return r3.Scale(nTToGauss, r3.Vec{X: -bt, Y: bp, Z: -br})
}

// Declination is the angle from true north to the horizontal field, radians, positive east.
func Declination(field r3.Vec) float64 {
	return math.Atan2(field.Y, field.X)
}

// Inclination is the dip of the field below the horizon, radians.
func Inclination(field r3.Vec) float64 {
	return math.Atan2(field.Z, math.Hypot(field.X, field.Y))
}
