package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationSeconds converts a controller duration string ("1.234s",
// "500ms", "1m30s", "1h5m30s") to seconds. A bare number is taken as
// seconds.
func ParseDurationSeconds(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if parsed, err := time.ParseDuration(trimmed); err == nil {
		return parsed.Seconds(), nil
	}
	if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return seconds, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}
