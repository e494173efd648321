package geo

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotations between the simulator frames (world ENU, body FLU) and the
// autopilot frames (world NED, body FRD).
var (
	qNedFromEnu = quat.Number{Real: 0, Imag: math.Sqrt2 / 2, Jmag: math.Sqrt2 / 2, Kmag: 0}
	qFluFromFrd = quat.Number{Real: 0, Imag: 1, Jmag: 0, Kmag: 0}
)

// EnuToNed converts a world-frame vector.
func EnuToNed(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.Y, Y: v.X, Z: -v.Z}
}

// FluToFrd converts a body-frame vector.
func FluToFrd(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Y: -v.Y, Z: -v.Z}
}

// AttitudeNed converts a FLU-to-ENU attitude into the FRD-to-NED attitude.
func AttitudeNed(qEnuFlu quat.Number) quat.Number {
	return quat.Mul(quat.Mul(qNedFromEnu, qEnuFlu), qFluFromFrd)
}

// Rotate applies the rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// RotateInverse applies the inverse of the unit rotation q to v.
func RotateInverse(q quat.Number, v r3.Vec) r3.Vec {
	return Rotate(quat.Conj(q), v)
}

// Yaw extracts the heading of a unit quaternion, radians.
func Yaw(q quat.Number) float64 {
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Euler returns roll, pitch and yaw of a unit quaternion, radians.
func Euler(q quat.Number) (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.Real*q.Imag+q.Jmag*q.Kmag), 1-2*(q.Imag*q.Imag+q.Jmag*q.Jmag))
	s := 2 * (q.Real*q.Jmag - q.Kmag*q.Imag)
	s = max(-1, min(1, s))
	pitch = math.Asin(s)
	yaw = Yaw(q)
	return roll, pitch, yaw
}
