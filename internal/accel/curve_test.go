package accel

import (
	"math"
	"testing"
)

func mustProfile(t *testing.T, kv map[Key]float64) Profile {
	t.Helper()
	p := Defaults()
	for k, v := range kv {
		if err := p.Set(k, v); err != nil {
			t.Fatalf("Set(%s, %v): %v", k, v, err)
		}
	}
	return p
}

// TestEvaluate_DefaultsAtRest: defaults at rest give the base sensitivity.
func TestEvaluate_DefaultsAtRest(t *testing.T) {
	if got := Evaluate(0, Defaults()); got != 1.0 {
		t.Errorf("Evaluate(0, defaults) = %v, want 1.0", got)
	}
}

// TestEvaluate_UnitPower: power=1 makes growth a constant 1 above the offset.
func TestEvaluate_UnitPower(t *testing.T) {
	p := mustProfile(t, map[Key]float64{
		KeyBase:       1,
		KeyOffset:     0,
		KeyUpperBound: 128,
		KeyAccelRate:  1,
		KeyPower:      1,
		KeyGameSens:   1,
	})
	if got := Evaluate(3, p); got != 2 {
		t.Errorf("Evaluate(3) = %v, want 2", got)
	}
}

// TestEvaluate_ZeroGameSensIsInf: a zero game_sens is not rejected and gives +Inf.
func TestEvaluate_ZeroGameSensIsInf(t *testing.T) {
	p := mustProfile(t, map[Key]float64{KeyGameSens: 0})
	if got := Evaluate(5, p); !math.IsInf(got, 1) {
		t.Errorf("Evaluate with game_sens=0 = %v, want +Inf", got)
	}
}

func TestEvaluate_NegativeGameSens(t *testing.T) {
	p := mustProfile(t, map[Key]float64{KeyGameSens: -2})
	if got := Evaluate(0, p); got != -0.5 {
		t.Errorf("Evaluate with game_sens=-2 = %v, want -0.5", got)
	}
}

func TestEvaluate_QuadraticGrowth(t *testing.T) {
	p := mustProfile(t, map[Key]float64{
		KeyOffset:    2,
		KeyAccelRate: 0.5,
		KeyPower:     3,
		KeyGameSens:  2,
	})
	// change=8, growth=(0.5*8)^2=16, unbound=17, sens=17/2
	if got := Evaluate(10, p); got != 8.5 {
		t.Errorf("Evaluate(10) = %v, want 8.5", got)
	}
}

func TestEvaluate_ZeroBelowOffset(t *testing.T) {
	profiles := []Profile{
		Defaults(),
		mustProfile(t, map[Key]float64{KeyOffset: 4, KeyAccelRate: 1.04, KeyUpperBound: 90}),
		mustProfile(t, map[Key]float64{KeyOffset: 3, KeyAccelRate: 2, KeyPower: 1}),
		mustProfile(t, map[Key]float64{KeyOffset: 3, KeyAccelRate: 2, KeyPower: 0.5}),
		mustProfile(t, map[Key]float64{KeyOffset: 1, KeyBase: 50, KeyUpperBound: 20, KeyGameSens: 4}),
	}

	for i, p := range profiles {
		want := math.Min(p.Base(), p.UpperBound()) / p.GameSens()
		for _, v := range []float64{0, p.Offset() / 2, p.Offset()} {
			if got := Evaluate(v, p); got != want {
				t.Errorf("profile %d: Evaluate(%v) = %v, want %v", i, v, got, want)
			}
		}
	}
}

func TestEvaluate_ClampedByUpperBound(t *testing.T) {
	p := mustProfile(t, map[Key]float64{
		KeyAccelRate:  3,
		KeyPower:      4,
		KeyUpperBound: 25,
	})
	for _, v := range VelocityRange(0, 100, 0.5) {
		if got := Evaluate(v, p); got > p.UpperBound() {
			t.Fatalf("Evaluate(%v) = %v exceeds upper_bound %v", v, got, p.UpperBound())
		}
	}
	if got := Evaluate(1000, p); got != 25 {
		t.Errorf("expected saturation at 25, got %v", got)
	}
}

// TestEvaluate_IndeterminatePowerClamps checks that a negative base raised to
// a fractional exponent resolves to the upper bound instead of NaN.
func TestEvaluate_IndeterminatePowerClamps(t *testing.T) {
	p := mustProfile(t, map[Key]float64{
		KeyAccelRate:  -1,
		KeyPower:      2.5,
		KeyUpperBound: 40,
		KeyGameSens:   2,
	})
	got := Evaluate(3, p)
	if math.IsNaN(got) {
		t.Fatalf("expected NaN to be contained, got NaN")
	}
	if got != 20 {
		t.Errorf("Evaluate = %v, want upper_bound/game_sens = 20", got)
	}
}

func TestEvaluate_NegativeBaseIntegerExponent(t *testing.T) {
	p := mustProfile(t, map[Key]float64{
		KeyAccelRate: -1,
		KeyPower:     3,
	})
	// (-1*2)^2 = 4 is well defined.
	if got := Evaluate(2, p); got != 5 {
		t.Errorf("Evaluate(2) = %v, want 5", got)
	}
}

func TestEvaluate_DoesNotMutateProfile(t *testing.T) {
	p := mustProfile(t, map[Key]float64{KeyAccelRate: 1})
	before := p
	_ = Evaluate(10, p)
	_ = EvaluateRange([]float64{1, 2, 3}, p)
	if !p.Equal(before) {
		t.Errorf("evaluation changed the profile")
	}
}

func TestEvaluateRange_PreservesOrderAndLength(t *testing.T) {
	p := mustProfile(t, map[Key]float64{KeyAccelRate: 1})
	vs := []float64{5, 0, 2.5, 10, 1}

	got := EvaluateRange(vs, p)
	if len(got) != len(vs) {
		t.Fatalf("expected %d samples, got %d", len(vs), len(got))
	}
	for i, v := range vs {
		if want := Evaluate(v, p); got[i] != want {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want)
		}
	}

	if out := EvaluateRange(nil, p); len(out) != 0 {
		t.Errorf("expected empty output for empty input, got %v", out)
	}
}

func TestVelocityRange(t *testing.T) {
	vs := VelocityRange(0, 25, 0.1)
	if len(vs) != 250 {
		t.Fatalf("expected 250 samples, got %d", len(vs))
	}
	if vs[0] != 0 {
		t.Errorf("expected first sample 0, got %v", vs[0])
	}
	if last := vs[len(vs)-1]; last >= 25 || math.Abs(last-24.9) > 1e-9 {
		t.Errorf("unexpected last sample %v", last)
	}

	if VelocityRange(0, 10, 0) != nil {
		t.Errorf("expected nil for zero step")
	}
	if VelocityRange(5, 5, 1) != nil {
		t.Errorf("expected nil for empty range")
	}
}

func TestCurve(t *testing.T) {
	pts := Curve([]float64{0, 1}, Defaults())
	if len(pts) != 2 || pts[1].Velocity != 1 || pts[1].Sensitivity != 1 {
		t.Errorf("unexpected curve points: %+v", pts)
	}
}
