// Package accel holds the acceleration profile model and the sensitivity
// curve.
//
// A Profile always carries the full canonical key set. Profiles come from
// Defaults, from parsing key=value text (Parse, Read, LoadFile) or from form
// values (MappingToProfile). The zero Profile is all zeros and is not a
// useful starting point.
//
// Bad entries never fail a parse: each one falls back to the default for its
// key and is reported as a FieldFallback. The only error surfaced to callers
// is ErrSourceUnavailable, when the text cannot be read or written at all.
package accel
