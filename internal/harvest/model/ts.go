package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CompareTS compares two Slack ts tokens ("<seconds>.<micros>") numerically.
// It returns -1, 0 or +1.
func CompareTS(a, b string) int {
	aw, af := splitTS(a)
	bw, bf := splitTS(b)
	if len(aw) != len(bw) {
		if len(aw) < len(bw) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(aw, bw); c != 0 {
		return c
	}
	if n := len(af) - len(bf); n > 0 {
		bf += strings.Repeat("0", n)
	} else if n < 0 {
		af += strings.Repeat("0", -n)
	}
	return strings.Compare(af, bf)
}

func splitTS(ts string) (string, string) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(ts), ".")
	whole = strings.TrimLeft(whole, "0")
	frac = strings.TrimRight(frac, "0")
	return whole, frac
}

// ParseTS converts a ts token to a UTC time.
func ParseTS(ts string) (time.Time, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(ts), ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ts %q: %w", ts, err)
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nsec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid ts %q: %w", ts, err)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}

// FormatTS renders t as a ts token with microsecond precision.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}
