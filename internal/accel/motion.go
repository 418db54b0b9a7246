package accel

import (
	"math"
)

// Accelerator applies a profile to a stream of integer mouse deltas.
//
// Output is truncated toward zero; the cut-off fraction is carried into the
// next report so slow, steady motion is not lost. An Accelerator is owned by a
// single reader goroutine.
type Accelerator struct {
	profile Profile
	carryX  float64
	carryY  float64
}

// NewAccelerator returns an Accelerator for p with no carried motion.
func NewAccelerator(p Profile) *Accelerator {
	return &Accelerator{profile: p}
}

// Profile returns the profile in use.
func (a *Accelerator) Profile() Profile { return a.profile }

// SetProfile swaps the profile and drops any carried motion.
func (a *Accelerator) SetProfile(p Profile) {
	a.profile = p
	a.carryX, a.carryY = 0, 0
}

// Velocity is the pointer speed of a single report after the overflow clip
// and pre-scalars.
func (a *Accelerator) Velocity(dx, dy int32) float64 {
	p := a.profile
	x := clipDelta(float64(dx), p.OverflowLim()) * p.PreScalarX()
	y := clipDelta(float64(dy), p.OverflowLim()) * p.PreScalarY()
	return math.Hypot(x, y)
}

// Apply accelerates one report and returns the deltas to emit.
func (a *Accelerator) Apply(dx, dy int32) (int32, int32) {
	p := a.profile
	sens := Evaluate(a.Velocity(dx, dy), p)

	fx := float64(dx)*sens*p.PostScalarX() + a.carryX
	fy := float64(dy)*sens*p.PostScalarY() + a.carryY

	// A zero game_sens gives an infinite multiplier; 0 * Inf is NaN.
	if !isFinite(fx) || !isFinite(fy) {
		a.carryX, a.carryY = 0, 0
		return 0, 0
	}

	fx = limitDelta(fx)
	fy = limitDelta(fy)
	tx := math.Trunc(fx)
	ty := math.Trunc(fy)
	a.carryX = fx - tx
	a.carryY = fy - ty
	return int32(tx), int32(ty)
}

// clipDelta limits |delta| to lim. A lim of zero or less disables the clip.
func clipDelta(delta, lim float64) float64 {
	if lim <= 0 {
		return delta
	}
	if delta > lim {
		return lim
	}
	if delta < -lim {
		return -lim
	}
	return delta
}

func limitDelta(v float64) float64 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
