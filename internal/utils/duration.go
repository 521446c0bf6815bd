package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is used whenever a configured TTL string cannot be resolved.
const DefaultTTL = 15 * time.Minute

var ttlPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// ParseTTL resolves strings such as "30s", "15m", "12h", "7d" or "2w".
// Anything else, including a zero amount, yields DefaultTTL.
func ParseTTL(s string) time.Duration {
	m := ttlPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return DefaultTTL
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return DefaultTTL
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	// guard against overflow on absurd values
	if n > int64((1<<63-1)/unit) {
		return DefaultTTL
	}
	return time.Duration(n) * unit
}
