// Package durfmt parses and formats the durations used across the CLI and
// status line: --retry-stream accepts either raw seconds (the teacher's
// original behaviour) or a human string like "30s"/"2m", and the progress
// aggregator renders elapsed session time as HH:MM:SS.
package durfmt

import (
	"strconv"
	"strings"
	"time"

	"github.com/dannav/hhmmss"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// ParseRetryInterval parses a --retry-stream argument. Bare integers are
// treated as seconds (parity with the teacher's abs(int(a))); anything else
// is parsed as a Go-style duration string via str2duration, which also
// accepts forms str2duration understands that time.ParseDuration does not
// (e.g. "1d").
func ParseRetryInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			n = -n
		}
		return time.Duration(n) * time.Second, nil
	}
	return str2duration.ParseDuration(s)
}

// Elapsed formats a duration as HH:MM:SS for the status line.
func Elapsed(d time.Duration) string {
	return hhmmss.Format(d)
}
