package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// 0 or 1 leaves size unchanged. Alignment does not need to be a power of two.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// GCD returns the greatest common divisor of a and b.
func GCD[T constraints.Unsigned](a, b T) T {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b. A zero argument is
// treated as 1.
func LCM[T constraints.Unsigned](a, b T) T {
	if a == 0 {
		a = 1
	}
	if b == 0 {
		b = 1
	}
	return a / GCD(a, b) * b
}
