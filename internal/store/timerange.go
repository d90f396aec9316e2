package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

// ParseTimeRange converts a duration shorthand ("24h", "2d", "1w") or
// a bare integer (treated as hours) into hours.
func ParseTimeRange(timeRange string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(timeRange))

	var n int
	var err error
	switch {
	case strings.HasSuffix(s, "h"):
		n, err = strconv.Atoi(strings.TrimSuffix(s, "h"))
	case strings.HasSuffix(s, "d"):
		n, err = strconv.Atoi(strings.TrimSuffix(s, "d"))
		n *= 24
	case strings.HasSuffix(s, "w"):
		n, err = strconv.Atoi(strings.TrimSuffix(s, "w"))
		n *= 24 * 7
	default:
		n, err = strconv.Atoi(s)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time range %q: %v", sentinelerr.ErrConfig, timeRange, err)
	}
	return n, nil
}
