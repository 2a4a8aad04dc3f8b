package nomad

import "strconv"

// trimFloat formats a float64 using the shortest representation that
// round-trips exactly, matching the style of history/cache file fields.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
