package core

import "math"

// OrderedBits reinterprets a non-negative float32 as its IEEE-754 bit
// pattern. For f >= 0 the unsigned ordering of the bits matches the numeric
// ordering of the floats, which is what lets a GPU integer atomicMax reduce
// gradient magnitudes. Negative inputs (and -0) are clamped to +0: their bit
// patterns would sort above every positive value.
func OrderedBits(f float32) uint32 {
	if !(f > 0) {
		return 0
	}
	return math.Float32bits(f)
}

// FromOrderedBits is the inverse of OrderedBits.
func FromOrderedBits(b uint32) float32 {
	return math.Float32frombits(b)
}
