package volume

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ramp builds a volume whose intensity rises linearly from 0 to the type's
// maximum along axis (0 = x, 1 = y, 2 = z).
func Ramp(dims [3]int, axis int, t ElementType) (*VoxelVolume, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("ramp axis %d out of range", axis)
	}
	if err := CheckDims(dims); err != nil {
		return nil, err
	}
	span := float32(dims[axis] - 1)
	unit := fill(dims, func(p [3]int) float32 {
		if span == 0 {
			return 0
		}
		return float32(p[axis]) / span
	})
	return FromUnit(dims, t, unit)
}

// Sphere builds a phantom with a bright shell, a softer core and empty space
// around it, radius given as a fraction of the smallest dimension.
func Sphere(dims [3]int, radius float32, t ElementType) (*VoxelVolume, error) {
	if err := CheckDims(dims); err != nil {
		return nil, err
	}
	minDim := float32(min(dims[0], dims[1], dims[2]))
	r := radius * minDim * 0.5
	center := mgl32.Vec3{float32(dims[0]) * 0.5, float32(dims[1]) * 0.5, float32(dims[2]) * 0.5}
	unit := fill(dims, func(p [3]int) float32 {
		pos := mgl32.Vec3{float32(p[0]) + 0.5, float32(p[1]) + 0.5, float32(p[2]) + 0.5}
		dist := pos.Sub(center).Len()
		switch {
		case dist > r:
			return 0
		case dist > r*0.85:
			return 1
		default:
			return 0.35 + 0.1*float32(math.Cos(float64(dist/r)*math.Pi))
		}
	})
	return FromUnit(dims, t, unit)
}

// Cube builds a solid box between minB and maxB (voxel coordinates, inclusive).
func Cube(dims [3]int, minB, maxB mgl32.Vec3, t ElementType) (*VoxelVolume, error) {
	if err := CheckDims(dims); err != nil {
		return nil, err
	}
	unit := fill(dims, func(p [3]int) float32 {
		for i := 0; i < 3; i++ {
			f := float32(p[i])
			if f < minB[i] || f > maxB[i] {
				return 0
			}
		}
		return 1
	})
	return FromUnit(dims, t, unit)
}

func fill(dims [3]int, f func(p [3]int) float32) []float32 {
	out := make([]float32, dims[0]*dims[1]*dims[2])
	i := 0
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				out[i] = f([3]int{x, y, z})
				i++
			}
		}
	}
	return out
}

