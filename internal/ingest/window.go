package ingest

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sawpanic/sentirun/internal/social"
)

// ErrInvalidWindow is returned for windows not of the form <N>h or <N>d
var ErrInvalidWindow = fmt.Errorf("invalid window: %w", social.ErrInvalidInput)

// ParseWindow parses "<N>h" or "<N>d" (unit case-insensitive) into a duration
func ParseWindow(window string) (time.Duration, error) {
	if len(window) < 2 {
		return 0, fmt.Errorf("%w %q", ErrInvalidWindow, window)
	}

	digits, unitChar := window[:len(window)-1], window[len(window)-1]

	var unit time.Duration
	switch unitChar {
	case 'h', 'H':
		unit = time.Hour
	case 'd', 'D':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w %q: unit must be h or d", ErrInvalidWindow, window)
	}

	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w %q: count must be digits", ErrInvalidWindow, window)
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w %q: count out of range", ErrInvalidWindow, window)
	}
	return time.Duration(n) * unit, nil
}
