package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPart = regexp.MustCompile(`(\d+)(d|h|m|s)`)

var durationUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ParseDuration accepts everything time.ParseDuration does plus a day
// unit, so a watch debounce or transform timeout can read "1d" or "1d2h".
func ParseDuration(input string) (time.Duration, error) {
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}

	parts := durationPart.FindAllStringSubmatchIndex(input, -1)
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid duration %q", input)
	}

	var total time.Duration
	next := 0
	for _, p := range parts {
		// Parts must tile the input with nothing in between.
		if p[0] != next {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		next = p[1]

		n, err := strconv.ParseInt(input[p[2]:p[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", input, err)
		}
		total += time.Duration(n) * durationUnits[input[p[4]:p[5]]]
	}
	if next != len(input) {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	return total, nil
}
