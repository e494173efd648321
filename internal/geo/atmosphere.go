package geo

import "math"

// ISA sea-level constants.
const (
	seaLevelPressure    = 101325.0 // Pa
	seaLevelTemperature = 288.15   // K
	lapseRate           = 0.0065   // K/m
)

// Atmosphere returns the ISA static pressure (hPa) and temperature (°C) at
// an altitude in metres.
func Atmosphere(alt float64) (pressureHPa, temperatureC float64) {
	t := seaLevelTemperature - lapseRate*alt
	p := seaLevelPressure / math.Pow(seaLevelTemperature/t, 5.256)
	return p / 100, t - 273.15
}
