package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/social"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		window string
		want   time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"1H", time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30D", 30 * 24 * time.Hour},
		{"0h", 0},
		{"007d", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.window, func(t *testing.T) {
			got, err := ParseWindow(tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWindow_Invalid(t *testing.T) {
	for _, window := range []string{"", "h", "d", "24", "-1h", "+2d", "1.5h", "abc", "7w", "1 d", "99999999999999999999h"} {
		t.Run(window, func(t *testing.T) {
			_, err := ParseWindow(window)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidWindow))
			assert.True(t, errors.Is(err, social.ErrInvalidInput))
		})
	}
}
