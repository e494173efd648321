package actuation

import (
	"math"
	"time"
)

// PID is a positional controller with integral and output clamps.
type PID struct {
	gains    PIDGains
	integral float64
	prevErr  float64
	primed   bool
	out      float64
}

// NewPID creates a controller at rest.
func NewPID(g PIDGains) *PID {
	return &PID{gains: g}
}

// Update advances the controller by dt with the given error
// (setpoint minus measurement). A non-positive dt returns the previous
// output unchanged.
func (p *PID) Update(err float64, dt time.Duration) float64 {
	s := dt.Seconds()
	if s <= 0 {
		return p.out
	}

	p.integral = clamp(p.integral+err*s, p.gains.IMin, p.gains.IMax)
	var deriv float64
	if p.primed {
		deriv = (err - p.prevErr) / s
	}
	p.prevErr = err
	p.primed = true

	p.out = clamp(p.gains.P*err+p.gains.I*p.integral+p.gains.D*deriv, p.gains.CmdMin, p.gains.CmdMax)
	return p.out
}

// Reset clears the integral and derivative history.
func (p *PID) Reset() {
	p.integral, p.prevErr, p.out = 0, 0, 0
	p.primed = false
}

// Integral returns the clamped error integral.
func (p *PID) Integral() float64 {
	return p.integral
}

func clamp(v, lo, hi float64) float64 {
	if lo >= hi {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}
