package reminders

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NoThing is used when the input has no "| thing" part.
const NoThing = "Nothing"

// maxAhead bounds how far a reminder may be set.
const maxAhead = 100 * 365 * 24 * time.Hour

var (
	ErrNoTime   = errors.New("no time given")
	ErrBadTime  = errors.New("could not understand the time")
	ErrPastTime = errors.New("that time is not in the future")
)

var amountRe = regexp.MustCompile(`(\d+)\s*([a-z]+)`)

type unit int

const (
	unitYear unit = iota
	unitMonth
	unitWeek
	unitDay
	unitHour
	unitMinute
	unitSecond
)

var units = map[string]unit{
	"y": unitYear, "yr": unitYear, "yrs": unitYear, "year": unitYear, "years": unitYear,
	"mo": unitMonth, "mos": unitMonth, "month": unitMonth, "months": unitMonth,
	"w": unitWeek, "wk": unitWeek, "wks": unitWeek, "week": unitWeek, "weeks": unitWeek,
	"d": unitDay, "day": unitDay, "days": unitDay,
	"h": unitHour, "hr": unitHour, "hrs": unitHour, "hour": unitHour, "hours": unitHour,
	"m": unitMinute, "min": unitMinute, "mins": unitMinute, "minute": unitMinute, "minutes": unitMinute,
	"s": unitSecond, "sec": unitSecond, "secs": unitSecond, "second": unitSecond, "seconds": unitSecond,
}

// Parse reads "<time> | <thing>" relative to now, e.g. "1w | take out the
// trash" or "4 months and 2 days | birthday". Parts may be joined by spaces,
// commas or "and". Without a pipe the whole input is the time and the thing
// is NoThing.
func Parse(input string, now time.Time) (thing string, expires time.Time, err error) {
	when, what, found := strings.Cut(input, "|")
	thing = strings.TrimSpace(what)
	if !found || thing == "" {
		thing = NoThing
	}
	when = strings.ToLower(strings.TrimSpace(when))
	if when == "" {
		return "", time.Time{}, ErrNoTime
	}

	var (
		years, months, days int
		clock               time.Duration
	)
	matches := amountRe.FindAllStringSubmatchIndex(when, -1)
	if len(matches) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, when)
	}
	rest := []byte(when)
	for _, m := range matches {
		num, word := when[m[2]:m[3]], when[m[4]:m[5]]
		n, err := strconv.Atoi(num)
		if err != nil || n > 100000 {
			return "", time.Time{}, fmt.Errorf("%w: %q is too large", ErrBadTime, num)
		}
		u, ok := units[word]
		if !ok {
			return "", time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrBadTime, word)
		}
		switch u {
		case unitYear:
			years += n
		case unitMonth:
			months += n
		case unitWeek:
			days += 7 * n
		case unitDay:
			days += n
		case unitHour:
			clock += time.Duration(n) * time.Hour
		case unitMinute:
			clock += time.Duration(n) * time.Minute
		case unitSecond:
			clock += time.Duration(n) * time.Second
		}
		for i := m[0]; i < m[1]; i++ {
			rest[i] = ' '
		}
	}
	for _, tok := range strings.Fields(strings.ReplaceAll(string(rest), ",", " ")) {
		if tok != "and" {
			return "", time.Time{}, fmt.Errorf("%w: unexpected %q", ErrBadTime, tok)
		}
	}

	expires = now.AddDate(years, months, days).Add(clock)
	if !expires.After(now) {
		return "", time.Time{}, ErrPastTime
	}
	if expires.Sub(now) > maxAhead {
		return "", time.Time{}, fmt.Errorf("%w: more than 100 years ahead", ErrBadTime)
	}
	return thing, expires, nil
}
