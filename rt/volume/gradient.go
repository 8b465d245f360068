package volume

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/volumert/rt/core"
)

// GradientField mirrors the preprocess compute kernel on the CPU: central
// differences of normalized intensity with coordinates clamped to the grid.
// It is a reference for verifying GPU readbacks, not a render path.
type GradientField struct {
	Dims       [3]int
	Normalized []float32
}

func NewGradientField(vol *VoxelVolume) (*GradientField, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	return &GradientField{Dims: vol.Dims, Normalized: vol.Normalized()}, nil
}

func (g *GradientField) at(x, y, z int) float32 {
	x = clampInt(x, 0, g.Dims[0]-1)
	y = clampInt(y, 0, g.Dims[1]-1)
	z = clampInt(z, 0, g.Dims[2]-1)
	return g.Normalized[(z*g.Dims[1]+y)*g.Dims[0]+x]
}

// Gradient returns the gradient vector at voxel (x, y, z).
func (g *GradientField) Gradient(x, y, z int) mgl32.Vec3 {
	return mgl32.Vec3{
		(g.at(x+1, y, z) - g.at(x-1, y, z)) * 0.5,
		(g.at(x, y+1, z) - g.at(x, y-1, z)) * 0.5,
		(g.at(x, y, z+1) - g.at(x, y, z-1)) * 0.5,
	}
}

// MaxMagnitude reduces |gradient| over the whole grid. Slices are spread over
// workers that fold into one shared maximum the same way the shader does: an
// integer atomic max over the float's bit pattern.
func (g *GradientField) MaxMagnitude(workers int) float32 {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var maxBits atomic.Uint32
	slices := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := range slices {
				local := float32(0)
				for y := 0; y < g.Dims[1]; y++ {
					for x := 0; x < g.Dims[0]; x++ {
						if m := g.Gradient(x, y, z).Len(); m > local {
							local = m
						}
					}
				}
				atomicMaxBits(&maxBits, core.OrderedBits(local))
			}
		}()
	}
	for z := 0; z < g.Dims[2]; z++ {
		slices <- z
	}
	close(slices)
	wg.Wait()
	return core.FromOrderedBits(maxBits.Load())
}

func atomicMaxBits(dst *atomic.Uint32, v uint32) {
	for {
		cur := dst.Load()
		if v <= cur || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
