package updatemanager

import (
	"fmt"
	"math"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// FormatBytes renders a byte count with binary units for progress display.
// Negative and non-finite input renders as "0 B"; fractions are floored.
func FormatBytes(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return "0 B"
	}
	n = math.Floor(n)

	switch {
	case n < kib:
		return fmt.Sprintf("%d B", int64(n))
	case n < mib:
		return fmt.Sprintf("%.1f KB", n/kib)
	case n < gib:
		return fmt.Sprintf("%.1f MB", n/mib)
	default:
		return fmt.Sprintf("%.2f GB", n/gib)
	}
}
