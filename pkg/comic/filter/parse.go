package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration units beyond what time.ParseDuration accepts.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// ErrInvalidDuration indicates that the duration string could not be parsed.
var ErrInvalidDuration = errors.New("invalid duration format")

// ErrNegativeValue indicates that a negative value was provided.
var ErrNegativeValue = errors.New("value cannot be negative")

var units = map[string]time.Duration{"d": Day, "w": Week, "mo": Month, "y": Year}

var durationPattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*(d|w|mo|y)\s*$`)

// ParseDuration parses an age such as "3d", "2w", "6mo" or "1y". Anything
// else is handed to time.ParseDuration, so "36h" and "90m" work too.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeValue
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		return d, nil
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	return time.Duration(value * float64(units[strings.ToLower(m[2])])), nil
}
