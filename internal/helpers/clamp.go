// Package helpers holds small numeric conversions that would otherwise
// overflow silently, such as section counts written into 16-bit header
// fields.
package helpers

import (
	"cmp"
	"math"
)

// Clamp restricts v to the range [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// ClampIntToUint16 converts v to uint16, saturating at 0 and math.MaxUint16.
func ClampIntToUint16(v int) uint16 {
	return uint16(Clamp(v, 0, math.MaxUint16)) //nolint:gosec // clamped to valid range
}

// ClampIntToInt32 converts v to int32, saturating at the int32 limits.
func ClampIntToInt32(v int) int32 {
	return int32(Clamp(v, math.MinInt32, math.MaxInt32)) //nolint:gosec // clamped to valid range
}
