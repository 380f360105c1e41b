package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSpec(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0 7 * * *":        "0 7 * * *",
		"0 30 7 * * 1-5":   "0 30 7 * * 1-5",
		"@daily":           "@daily",
		"cron: 15 8 * * *": "15 8 * * *",
		"55m":              "@every 55m0s",
		"00:50":            "@every 50m0s",
		"02:30":            "@every 2h30m0s",
		"every: 90s":       "@every 1m30s",
		"  @every 1h  ":    "@every 1h",
	}
	for in, want := range cases {
		got, err := NormalizeSpec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"0 7 * * *", "@hourly", "10m", "01:00"} {
		assert.NoError(t, Validate(ok), ok)
	}
	for _, bad := range []string{"", "cron:", "soon", "00:75", "0s", "-5m", "61 * * * *", "every: nope"} {
		assert.Error(t, Validate(bad), bad)
	}
}
