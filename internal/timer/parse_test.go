package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args string
		want time.Duration
		ok   bool
	}{
		{name: "fused minutes", args: "bob 10m", want: 10 * time.Minute, ok: true},
		{name: "fused months", args: "bob 2M", want: 60 * day, ok: true},
		{name: "fused word unit", args: "bob 3hours", want: 3 * time.Hour, ok: true},
		{name: "count and unit", args: "bob 10 minutes", want: 10 * time.Minute, ok: true},
		{name: "count defaults to seconds", args: "bob 45", want: 45 * time.Second, ok: true},
		{name: "unknown unit word defaults to seconds", args: "bob 30 fortnights", want: 30 * time.Second, ok: true},
		{name: "count followed by count", args: "bob 30 10", want: 30 * time.Second, ok: true},
		{name: "first expression wins", args: "bob 1h 2d", want: time.Hour, ok: true},
		{name: "days", args: "5 d", want: 5 * day, ok: true},
		{name: "fused unknown unit is skipped", args: "bob 5x 2w", want: 2 * week, ok: true},
		{name: "no duration", args: "bob soon", ok: false},
		{name: "empty", args: "", ok: false},
		{name: "overflow skipped", args: "99999999999999999999y 1s", want: time.Second, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDuration(tt.args)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestHumanize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10 minutes", Humanize(10*time.Minute))
	assert.Equal(t, "1 hour", Humanize(time.Hour))
	assert.Equal(t, "5 seconds", Humanize(5*time.Second))
	assert.Equal(t, "3 days", Humanize(3*day))
}
