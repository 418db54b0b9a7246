package accel

import (
	"errors"
	"fmt"
	"math"
)

// Key names a single acceleration setting. Keys are case-sensitive.
type Key string

const (
	KeyBase        Key = "base"
	KeyOffset      Key = "offset"
	KeyUpperBound  Key = "upper_bound"
	KeyAccelRate   Key = "accel_rate"
	KeyPower       Key = "power"
	KeyGameSens    Key = "game_sens"
	KeyOverflowLim Key = "overflow_lim"
	KeyPreScalarX  Key = "pre_scalar_x"
	KeyPreScalarY  Key = "pre_scalar_y"
	KeyPostScalarX Key = "post_scalar_x"
	KeyPostScalarY Key = "post_scalar_y"
)

const numKeys = 11

// canonicalKeys is the on-disk order. Index positions match Profile.values.
var canonicalKeys = [numKeys]Key{
	KeyBase,
	KeyOffset,
	KeyUpperBound,
	KeyAccelRate,
	KeyPower,
	KeyGameSens,
	KeyOverflowLim,
	KeyPreScalarX,
	KeyPreScalarY,
	KeyPostScalarX,
	KeyPostScalarY,
}

// legacyKeys is the older "quake accel" parameter set. Files written with only
// these keys still load; everything else keeps its default.
var legacyKeys = [...]Key{
	KeyBase,
	KeyOffset,
	KeyUpperBound,
	KeyAccelRate,
	KeyPower,
	KeyGameSens,
}

var keyIndex = func() map[Key]int {
	m := make(map[Key]int, numKeys)
	for i, k := range canonicalKeys {
		m[k] = i
	}
	return m
}()

// defaultProfile is never handed out by reference; Defaults returns a copy.
var defaultProfile = Profile{values: [numKeys]float64{
	1.0,     // base
	0.0,     // offset
	10000.0, // upper_bound (arbitrary large value)
	0.0,     // accel_rate
	2.0,     // power
	1.0,     // game_sens
	127,     // overflow_lim (signed char max)
	1.0,     // pre_scalar_x
	1.0,     // pre_scalar_y
	1.0,     // post_scalar_x
	1.0,     // post_scalar_y
}}

var (
	ErrUnknownKey = errors.New("unknown setting")
	ErrNonFinite  = errors.New("value is not finite")
)

// Profile is the full set of acceleration settings. It is a value type:
// assigning or passing a Profile copies it, so a Profile held by one caller
// can never be changed through another.
type Profile struct {
	values [numKeys]float64
}

// Defaults returns a fresh copy of the canonical default profile.
func Defaults() Profile {
	return defaultProfile
}

// CanonicalKeys returns the canonical key order used when saving profiles.
func CanonicalKeys() []Key {
	keys := make([]Key, numKeys)
	copy(keys, canonicalKeys[:])
	return keys
}

// LegacyKeys returns the six keys understood by the older quake-style
// configuration files.
func LegacyKeys() []Key {
	keys := make([]Key, len(legacyKeys))
	copy(keys, legacyKeys[:])
	return keys
}

// IsKnown reports whether k is part of the canonical key set.
func IsKnown(k Key) bool {
	_, ok := keyIndex[k]
	return ok
}

// DefaultValue returns the default for k. The second result is false for
// unknown keys.
func DefaultValue(k Key) (float64, bool) {
	return defaultProfile.Lookup(k)
}

// Lookup returns the value stored for k.
func (p Profile) Lookup(k Key) (float64, bool) {
	i, ok := keyIndex[k]
	if !ok {
		return 0, false
	}
	return p.values[i], true
}

// Get returns the value stored for k, or 0 for an unknown key.
func (p Profile) Get(k Key) float64 {
	v, _ := p.Lookup(k)
	return v
}

// Set replaces the value for k on this copy of the profile.
func (p *Profile) Set(k Key, v float64) error {
	i, ok := keyIndex[k]
	if !ok {
		return fmt.Errorf("set %q: %w", k, ErrUnknownKey)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("set %q: %w", k, ErrNonFinite)
	}
	p.values[i] = v
	return nil
}

// Reset restores k to its default value.
func (p *Profile) Reset(k Key) {
	if i, ok := keyIndex[k]; ok {
		p.values[i] = defaultProfile.values[i]
	}
}

// Equal reports whether both profiles hold identical values.
func (p Profile) Equal(o Profile) bool {
	return p.values == o.values
}

// Each calls fn for every key in canonical order.
func (p Profile) Each(fn func(k Key, v float64)) {
	for i, k := range canonicalKeys {
		fn(k, p.values[i])
	}
}

func (p Profile) Base() float64        { return p.values[0] }
func (p Profile) Offset() float64      { return p.values[1] }
func (p Profile) UpperBound() float64  { return p.values[2] }
func (p Profile) AccelRate() float64   { return p.values[3] }
func (p Profile) Power() float64       { return p.values[4] }
func (p Profile) GameSens() float64    { return p.values[5] }
func (p Profile) OverflowLim() float64 { return p.values[6] }
func (p Profile) PreScalarX() float64  { return p.values[7] }
func (p Profile) PreScalarY() float64  { return p.values[8] }
func (p Profile) PostScalarX() float64 { return p.values[9] }
func (p Profile) PostScalarY() float64 { return p.values[10] }
