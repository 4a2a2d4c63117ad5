package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		thing   string
		expires time.Time
	}{
		{"1w | take out the trash", "take out the trash", base.AddDate(0, 0, 7)},
		{"4 months and 2 days | william's birthday", "william's birthday", base.AddDate(0, 4, 2)},
		{"1 week", NoThing, base.AddDate(0, 0, 7)},
		{"1 week 2days | fix this code", "fix this code", base.AddDate(0, 0, 9)},
		{"1h, 30m | tea", "tea", base.Add(90 * time.Minute)},
		{"2 HOURS and 5 secs|stretch", "stretch", base.Add(2*time.Hour + 5*time.Second)},
		{"1y2mo3d4h5m6s | all units", "all units", base.AddDate(1, 2, 3).Add(4*time.Hour + 5*time.Minute + 6*time.Second)},
		{"10 minutes |   ", NoThing, base.Add(10 * time.Minute)},
		{"3 min | a | b", "a | b", base.Add(3 * time.Minute)},
	}
	for _, tc := range cases {
		thing, expires, err := Parse(tc.in, base)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.thing, thing, tc.in)
		assert.Equal(t, tc.expires, expires, tc.in)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrNoTime},
		{" | thing", ErrNoTime},
		{"tomorrow | thing", ErrBadTime},
		{"5 fortnights | thing", ErrBadTime},
		{"1h or 2h | thing", ErrBadTime},
		{"0s | now", ErrPastTime},
		{"200 years | far", ErrBadTime},
		{"99999999999999999999h | big", ErrBadTime},
	}
	for _, tc := range cases {
		_, _, err := Parse(tc.in, base)
		assert.ErrorIs(t, err, tc.want, tc.in)
	}
}
