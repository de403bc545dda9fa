package updatemanager

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1023.9, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024*1024 - 1, "1024.0 KB"},
		{1024 * 1024, "1.0 MB"},
		{5.5 * 1024 * 1024, "5.5 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{2.25 * 1024 * 1024 * 1024, "2.25 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3072.00 GB"},
		{-1, "0 B"},
		{math.NaN(), "0 B"},
		{math.Inf(1), "0 B"},
		{math.Inf(-1), "0 B"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), "FormatBytes(%v)", tt.in)
	}
}
