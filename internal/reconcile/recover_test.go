package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuditDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"date column", "2026-03-15", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"timestamp column", "2026-03-15T00:00:00", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"timestamp with micros", "2026-03-15T09:30:00.123456", time.Date(2026, 3, 15, 9, 30, 0, 123456000, time.UTC)},
		{"timestamptz column", "2026-03-15T09:30:00+00:00", time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)},
		{"timestamptz offset", "2026-03-15T09:30:00-05:00", time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAuditDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}

	for _, in := range []string{"", "yesterday", "03/15/2026"} {
		_, err := parseAuditDate(in)
		assert.Error(t, err, "input %q", in)
	}
}
