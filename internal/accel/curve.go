package accel

import (
	"math"
)

// Evaluate maps an input velocity to a sensitivity multiplier:
//
//	sens = min(base + (accel_rate * max(v - offset, 0)) ^ (power - 1), upper_bound) / game_sens
//
// Pre- and post-scalars and overflow_lim are not part of the curve.
func Evaluate(velocity float64, p Profile) float64 {
	change := velocity - p.Offset()
	if !(change > 0) {
		change = 0
	}

	// At or below the offset there is no growth, whatever the exponent.
	growth := 0.0
	if change > 0 {
		growth = math.Pow(p.AccelRate()*change, p.Power()-1)
	}

	// NaN (negative base, fractional exponent) clamps to upper_bound.
	unbound := p.Base() + growth
	bound := unbound
	if math.IsNaN(unbound) || unbound > p.UpperBound() {
		bound = p.UpperBound()
	}

	// game_sens <= 0 is allowed and yields infinite or negative output.
	return bound / p.GameSens()
}

// EvaluateRange evaluates the curve at every velocity, keeping input order.
func EvaluateRange(velocities []float64, p Profile) []float64 {
	out := make([]float64, len(velocities))
	for i, v := range velocities {
		out[i] = Evaluate(v, p)
	}
	return out
}

// VelocityRange returns the sample grid start, start+step, ... up to but not
// including stop. It returns nil for a non-positive step or an empty range.
func VelocityRange(start, stop, step float64) []float64 {
	if !(step > 0) || !(stop > start) {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := start + float64(i)*step
		if v >= stop {
			break
		}
		out = append(out, v)
	}
	return out
}

// Point is one sample of the sensitivity curve.
type Point struct {
	Velocity    float64
	Sensitivity float64
}

// Curve samples the curve over velocities.
func Curve(velocities []float64, p Profile) []Point {
	sens := EvaluateRange(velocities, p)
	pts := make([]Point, len(velocities))
	for i, v := range velocities {
		pts[i] = Point{Velocity: v, Sensitivity: sens[i]}
	}
	return pts
}
