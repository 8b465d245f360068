package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/volume"
)

// ProcessedFormat is the format of the four-channel preprocessed volume:
// r = normalized intensity, gba = gradient.
const ProcessedFormat = wgpu.TextureFormatRGBA16Float

// RawFormat describes how a volume's native element type is uploaded and
// read back in the preprocessing shader.
type RawFormat struct {
	Texture    wgpu.TextureFormat
	SampleType wgpu.TextureSampleType
	// WGSL is the texture_3d component type.
	WGSL string
}

func RawFormatFor(t volume.ElementType) (RawFormat, error) {
	switch t {
	case volume.Uint8:
		return RawFormat{wgpu.TextureFormatR8Uint, wgpu.TextureSampleTypeUint, "u32"}, nil
	case volume.Uint16:
		return RawFormat{wgpu.TextureFormatR16Uint, wgpu.TextureSampleTypeUint, "u32"}, nil
	case volume.Int16:
		return RawFormat{wgpu.TextureFormatR16Sint, wgpu.TextureSampleTypeSint, "i32"}, nil
	case volume.Int32:
		return RawFormat{wgpu.TextureFormatR32Sint, wgpu.TextureSampleTypeSint, "i32"}, nil
	case volume.Float32:
		return RawFormat{wgpu.TextureFormatR32Float, wgpu.TextureSampleTypeUnfilterableFloat, "f32"}, nil
	}
	return RawFormat{}, fmt.Errorf("%w: no texture format for element type %v", core.ErrResourceSizeMismatch, t)
}
