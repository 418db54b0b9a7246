package accel

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// FormatValue renders v with the fewest digits that parse back to exactly v.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Serialize renders one key=value line per key in order. Keys outside the
// canonical set are skipped.
func Serialize(p Profile, order []Key) string {
	var b strings.Builder
	// strings.Builder never returns a write error.
	_ = Encode(&b, p, order)
	return b.String()
}

// Encode writes the Serialize form of p to w.
func Encode(w io.Writer, p Profile, order []Key) error {
	bw := bufio.NewWriter(w)
	for _, k := range order {
		v, ok := p.Lookup(k)
		if !ok {
			continue
		}
		bw.WriteString(string(k))
		bw.WriteByte('=')
		bw.WriteString(FormatValue(v))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
