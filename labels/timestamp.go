package labels

import (
	"math"
	"strconv"
	"strings"

	"github.com/RyanBlaney/micmon/errdefs"
)

// SecondsToMillis converts a number of seconds to whole milliseconds.
// Zero and negative inputs map to 0.
func SecondsToMillis(seconds float64) int64 {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}

// ParseTimestamp converts "[hh:]mm:ss[.fff]" or a plain number of seconds
// ("2.5") into milliseconds. The empty string is 0.
//
// The fractional part is a decimal fraction of a second, so "00:03.5" and
// "00:03.500" are both 3500 ms.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if !strings.Contains(s, ":") {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds < 0 || math.IsInf(seconds, 0) {
			return 0, errdefs.Configuration("labels.ParseTimestamp", "invalid timestamp "+strconv.Quote(s), err)
		}
		return SecondsToMillis(seconds), nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, errdefs.Configuration("labels.ParseTimestamp", "too many fields in timestamp "+strconv.Quote(s), nil)
	}

	var hh, mm int64
	var err error
	if len(parts) == 3 {
		if hh, err = parseField(parts[0]); err != nil {
			return 0, errdefs.Configuration("labels.ParseTimestamp", "invalid hours in "+strconv.Quote(s), err)
		}
		parts = parts[1:]
	}
	if mm, err = parseField(parts[0]); err != nil {
		return 0, errdefs.Configuration("labels.ParseTimestamp", "invalid minutes in "+strconv.Quote(s), err)
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[1], ".")
	ss, err := parseField(secPart)
	if err != nil {
		return 0, errdefs.Configuration("labels.ParseTimestamp", "invalid seconds in "+strconv.Quote(s), err)
	}

	var ms int64
	if hasFrac {
		if ms, err = parseFraction(fracPart); err != nil {
			return 0, errdefs.Configuration("labels.ParseTimestamp", "invalid fraction in "+strconv.Quote(s), err)
		}
	}

	return hh*3_600_000 + mm*60_000 + ss*1000 + ms, nil
}

func parseField(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// parseFraction reads up to millisecond precision; extra digits are truncated.
func parseFraction(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	if len(s) > 3 {
		s = s[:3]
	}
	s += strings.Repeat("0", 3-len(s))
	return strconv.ParseInt(s, 10, 64)
}
