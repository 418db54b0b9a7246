package accel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedLine = errors.New("line is not key=value")
	ErrEmptyValue    = errors.New("missing value")
	ErrNotANumber    = errors.New("value is not a number")
)

// FieldFallback records an entry that could not be applied as written.
// Fallbacks are diagnostics, never errors: the affected key (if any) already
// holds its default in the resulting profile.
type FieldFallback struct {
	Line   int // 1-based; 0 when the entry did not come from a file
	Key    Key // empty for lines without '='
	Raw    string
	Reason error
}

func (f FieldFallback) String() string {
	if f.Key == "" {
		return fmt.Sprintf("line %d: %q: %v", f.Line, f.Raw, f.Reason)
	}
	return fmt.Sprintf("line %d: %s=%q: %v", f.Line, f.Key, f.Raw, f.Reason)
}

// CoerceField converts raw to a float for key k. Anything that is not a
// finite number resolves to the default for k.
func CoerceField(raw string, k Key) float64 {
	v, _ := coerceField(raw, k)
	return v
}

// coerceField is CoerceField plus the reason a fallback happened. A nil error
// means raw parsed; a parsed value that equals the default is still a parse.
func coerceField(raw string, k Key) (float64, error) {
	def, _ := DefaultValue(k)

	s := strings.TrimSpace(raw)
	if s == "" {
		return def, ErrEmptyValue
	}
	if isHexFloat(s) {
		return def, ErrNotANumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) {
		return def, ErrNonFinite
	}
	if err != nil {
		return def, ErrNotANumber
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def, ErrNonFinite
	}
	return v, nil
}

// isHexFloat reports a Go hexadecimal literal such as 0x1p4, which
// strconv.ParseFloat accepts but the profile format does not.
func isHexFloat(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Parse builds a profile from key=value lines, starting from defaults.
// Malformed lines and bad values never abort the parse.
func Parse(lines []string) Profile {
	p, _ := ParseDetailed(lines)
	return p
}

// ParseDetailed is Parse, also returning every entry that fell back.
//
// Each line is split on the first '='. Unknown keys are ignored. When a key
// appears more than once the last line wins, and a bad last value resets the
// key to its default.
func ParseDetailed(lines []string) (Profile, []FieldFallback) {
	p := Defaults()
	var fallbacks []FieldFallback

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, raw, ok := strings.Cut(line, "=")
		if !ok {
			fallbacks = append(fallbacks, FieldFallback{
				Line:   i + 1,
				Raw:    strings.TrimSpace(line),
				Reason: ErrMalformedLine,
			})
			continue
		}

		k := Key(strings.TrimSpace(name))
		idx, known := keyIndex[k]
		if !known {
			fallbacks = append(fallbacks, FieldFallback{
				Line:   i + 1,
				Key:    k,
				Raw:    strings.TrimSpace(raw),
				Reason: ErrUnknownKey,
			})
			continue
		}

		v, err := coerceField(raw, k)
		if err != nil {
			fallbacks = append(fallbacks, FieldFallback{
				Line:   i + 1,
				Key:    k,
				Raw:    strings.TrimSpace(raw),
				Reason: err,
			})
		}
		p.values[idx] = v
	}

	return p, fallbacks
}

// ParseText splits text into lines and parses it.
func ParseText(text string) Profile {
	p, _ := ParseDetailed(splitLines(text))
	return p
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	// A trailing newline is optional and does not start another line.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// MappingToProfile converts raw form values into a profile. Keys missing
// from m, or not in the canonical set, leave the default in place.
func MappingToProfile(m map[string]string) Profile {
	p := Defaults()
	for i, k := range canonicalKeys {
		raw, ok := m[string(k)]
		if !ok {
			continue
		}
		p.values[i] = CoerceField(raw, k)
	}
	return p
}

// ProfileToMapping renders every setting as a string, suitable for
// populating form fields.
func ProfileToMapping(p Profile) map[string]string {
	m := make(map[string]string, numKeys)
	p.Each(func(k Key, v float64) {
		m[string(k)] = FormatValue(v)
	})
	return m
}
