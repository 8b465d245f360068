package source

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/volumert/rt/volume"
)

// Synthetic phantom kinds.
const (
	KindRamp   = "ramp"
	KindSphere = "sphere"
	KindCube   = "cube"
)

// Synthetic generates a procedural phantom, handy when no scan is at hand.
type Synthetic struct {
	Kind string
	Dims [3]int
	Type volume.ElementType
	// Axis is the ramp direction (0=x, 1=y, 2=z).
	Axis int
}

func (s Synthetic) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case KindRamp, "":
		return volume.Ramp(s.Dims, s.Axis, s.Type)
	case KindSphere:
		return volume.Sphere(s.Dims, 0.8, s.Type)
	case KindCube:
		lo := mgl32.Vec3{float32(s.Dims[0]) * 0.25, float32(s.Dims[1]) * 0.25, float32(s.Dims[2]) * 0.25}
		hi := mgl32.Vec3{float32(s.Dims[0]) * 0.75, float32(s.Dims[1]) * 0.75, float32(s.Dims[2]) * 0.75}
		return volume.Cube(s.Dims, lo, hi, s.Type)
	}
	return nil, fmt.Errorf("source: unknown synthetic kind %q", s.Kind)
}

func (s Synthetic) String() string {
	return fmt.Sprintf("synthetic:%s/%v/%v", s.Kind, s.Type, s.Dims)
}
