package cache

import "strconv"

// redisFloat formats a float64 the way Redis expects a score argument:
// plain decimal, no exponent notation.
func redisFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
