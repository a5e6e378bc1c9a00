package eskf

import (
	"strconv"
	"strings"
)

// Row formats a CSV row of the timestamp t followed by vals. Floating
// point fields carry 17 significant digits so that parsing a row
// reproduces the state bit-exact.
func Row(t float64, vals ...float64) string {
	fields := make([]string, len(vals)+1)
	fields[0] = FormatFloat(t)
	for i, v := range vals {
		fields[i+1] = FormatFloat(v)
	}

	return strings.Join(fields, ", ")
}

// FormatFloat formats a single CSV float field with 17 significant digits.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 17, 64)
}

// ParseRow parses a CSV row produced by Row and returns the timestamp
// and the remaining fields.
func ParseRow(row string) (float64, []float64, error) {
	parts := strings.Split(row, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, nil, err
		}
		vals[i] = v
	}

	return vals[0], vals[1:], nil
}
