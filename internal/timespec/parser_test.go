package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	tests := []struct {
		spec string
		want time.Time
	}{
		{spec: "1h", want: now.Add(-time.Hour)},
		{spec: "1h30m", want: now.Add(-90 * time.Minute)},
		{spec: "7d", want: now.AddDate(0, 0, -7)},
		{spec: "0d", want: now},
		{spec: "2025-10-01T08:30:00Z", want: time.Date(2025, 10, 1, 8, 30, 0, 0, time.UTC)},
		{spec: "2025-10-01", want: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseAt(tt.spec, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseAt_Invalid(t *testing.T) {
	for _, spec := range []string{"", "yesterday", "-d", "xd", "2025-13-45"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseAt(spec, now)
			assert.Error(t, err)
		})
	}
}

func TestParseRangeAt(t *testing.T) {
	t.Run("both bounds", func(t *testing.T) {
		since, until, err := ParseRangeAt("7d", "1h", now)
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, -7).UnixMilli(), since)
		assert.Equal(t, now.Add(-time.Hour).UnixMilli(), until)
	})

	t.Run("open bounds are zero", func(t *testing.T) {
		since, until, err := ParseRangeAt("", "", now)
		require.NoError(t, err)
		assert.Zero(t, since)
		assert.Zero(t, until)
	})

	t.Run("since after until", func(t *testing.T) {
		_, _, err := ParseRangeAt("1h", "7d", now)
		assert.EqualError(t, err, "--since must be before --until")
	})

	t.Run("invalid since", func(t *testing.T) {
		_, _, err := ParseRangeAt("soon", "", now)
		assert.ErrorContains(t, err, "invalid --since")
	})
}
