package timer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var units = map[string]time.Duration{
	"ms": time.Millisecond, "msec": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "week": week, "weeks": week,
	"month": month, "months": month,
	"y": year, "year": year, "years": year,
}

var (
	reCount = regexp.MustCompile(`^\d+$`)
	reWord  = regexp.MustCompile(`^\w+$`)
	reFused = regexp.MustCompile(`^(\d+)([A-Za-z]+)$`)
)

// unit normalizes a unit name. "M" is months; everything else is case-insensitive.
func unit(name string) (time.Duration, bool) {
	if name == "M" {
		return month, true
	}
	d, ok := units[strings.ToLower(name)]
	return d, ok
}

// ParseDuration finds the first duration expression in args: either a bare count
// optionally followed by a unit word ("10 minutes", "10" meaning seconds), or a count
// fused with its unit ("10m"). Later tokens are ignored. It returns false when args
// contains no duration.
func ParseDuration(args string) (time.Duration, bool) {
	tokens := strings.Fields(args)
	for i, tok := range tokens {
		if reCount.MatchString(tok) {
			per := time.Second
			if i+1 < len(tokens) && reWord.MatchString(tokens[i+1]) {
				if u, ok := unit(tokens[i+1]); ok {
					per = u
				}
			}
			if d, ok := scale(tok, per); ok {
				return d, true
			}
			continue
		}
		if m := reFused.FindStringSubmatch(tok); m != nil {
			u, ok := unit(m[2])
			if !ok {
				continue
			}
			if d, ok := scale(m[1], u); ok {
				return d, true
			}
		}
	}
	return 0, false
}

func scale(count string, per time.Duration) (time.Duration, bool) {
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil || n > math.MaxInt64/int64(per) {
		return 0, false
	}
	return time.Duration(n) * per, true
}

// Humanize renders d the way replies phrase it, e.g. "10 minutes" or "1 hour"
func Humanize(d time.Duration) string {
	base := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(base, base.Add(d), "", ""))
}
