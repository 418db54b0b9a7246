package main

import (
	"strconv"

	"github.com/ryanuber/columnize"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
)

// curveTable renders curve samples as aligned columns. Values are rounded
// for reading; the profile file keeps full precision.
func curveTable(points []accel.Point) string {
	lines := make([]string, 0, len(points)+1)
	lines = append(lines, "VELOCITY | SENSITIVITY")
	for _, pt := range points {
		lines = append(lines, formatShort(pt.Velocity)+" | "+formatShort(pt.Sensitivity))
	}
	return columnize.SimpleFormat(lines) + "\n"
}

func formatShort(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// profileTable lists every setting in canonical order, marking values that
// differ from the default.
func profileTable(p accel.Profile) string {
	lines := []string{"KEY | VALUE | DEFAULT | "}
	p.Each(func(k accel.Key, v float64) {
		def, _ := accel.DefaultValue(k)
		mark := ""
		if v != def {
			mark = "*"
		}
		lines = append(lines, string(k)+" | "+accel.FormatValue(v)+" | "+accel.FormatValue(def)+" | "+mark)
	})
	return columnize.SimpleFormat(lines) + "\n"
}
