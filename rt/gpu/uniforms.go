package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/volume"
)

const (
	CameraUniformSize   = 128
	TransferUniformSize = 64
	MaxGradientSize     = 4
)

// CameraUniform is the per-frame view state consumed by the ray marcher.
//
//	struct Camera {
//	  inv_mvp:  mat4x4<f32>; -- 0
//	  eye:      vec4<f32>;   -- 64  (object space)
//	  box_half: vec4<f32>;   -- 80
//	  dims:     vec4<f32>;   -- 96
//	} -> 128 bytes (padded)
type CameraUniform struct {
	InvMVP  mgl32.Mat4
	Eye     mgl32.Vec3
	BoxHalf mgl32.Vec3
	Dims    [3]int
}

// NewCameraUniform derives the uniform for a frame from params and the
// dimensions and voxel spacing of the bound volume.
func NewCameraUniform(p core.FrameParams, dims [3]int, spacing [3]float32) CameraUniform {
	m := core.DeriveMatrices(p)
	return CameraUniform{
		InvMVP:  m.InvMVP,
		Eye:     m.EyeInObjectSpace(p.Camera.Eye),
		BoxHalf: BoxHalfExtent(dims, spacing),
		Dims:    dims,
	}
}

// BoxHalfExtent scales the physical size of the grid so its longest axis
// spans [-0.5, 0.5]. Unset spacing components read as 1.
func BoxHalfExtent(dims [3]int, spacing [3]float32) mgl32.Vec3 {
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return mgl32.Vec3{0.5, 0.5, 0.5}
	}
	size := volume.PhysicalSize(dims, spacing)
	s := 0.5 / max(size[0], size[1], size[2])
	return mgl32.Vec3{size[0] * s, size[1] * s, size[2] * s}
}

func (c CameraUniform) Bytes() []byte {
	buf := make([]byte, CameraUniformSize)
	writeMat(buf, 0, c.InvMVP)
	writeVec4(buf, 64, [4]float32{c.Eye[0], c.Eye[1], c.Eye[2], 1})
	writeVec4(buf, 80, [4]float32{c.BoxHalf[0], c.BoxHalf[1], c.BoxHalf[2], 0})
	writeVec4(buf, 96, [4]float32{float32(c.Dims[0]), float32(c.Dims[1]), float32(c.Dims[2]), 0})
	return buf
}

// TransferUniform carries the opacity table and volume statistics.
//
//	struct Transfer {
//	  weights: array<vec4<f32>, 2>; -- 0
//	  params:  vec4<f32>;           -- 32 (slice_plane, max_intensity, max_gradient, _)
//	  counts:  vec4<u32>;           -- 48 (weight_count, _, _, _)
//	} -> 64 bytes
type TransferUniform struct {
	Weights      [core.MaxTransferWeights]float32
	WeightCount  uint32
	SlicePlane   float32
	MaxIntensity float32
	MaxGradient  float32
}

func NewTransferUniform(p core.FrameParams, maxIntensity, maxGradient float32) TransferUniform {
	n := min(len(p.Transfer), core.MaxTransferWeights)
	return TransferUniform{
		Weights:      p.Transfer.Weights(),
		WeightCount:  uint32(n),
		SlicePlane:   mgl32.Clamp(p.SlicePlane, 0, 1),
		MaxIntensity: maxIntensity,
		MaxGradient:  maxGradient,
	}
}

func (t TransferUniform) Bytes() []byte {
	buf := make([]byte, TransferUniformSize)
	for i, w := range t.Weights {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(w))
	}
	writeVec4(buf, 32, [4]float32{t.SlicePlane, t.MaxIntensity, t.MaxGradient, 0})
	binary.LittleEndian.PutUint32(buf[48:], t.WeightCount)
	return buf
}

// PreprocessParams is the uniform block of the preprocessing compute shader.
//
//	struct Params {
//	  dims:  vec4<u32>; -- 0
//	  range: vec4<f32>; -- 16 (lo, 1/(hi-lo), _, _)
//	} -> 32 bytes
type PreprocessParams struct {
	Dims  [3]int
	Lo    float32
	Scale float32
}

// NewPreprocessParams maps [lo, hi] onto [0, 1]. A flat range maps
// everything to zero.
func NewPreprocessParams(dims [3]int, lo, hi float32) PreprocessParams {
	scale := float32(0)
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	return PreprocessParams{Dims: dims, Lo: lo, Scale: scale}
}

func (p PreprocessParams) Bytes() []byte {
	buf := make([]byte, 32)
	for i, d := range p.Dims {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(d))
	}
	writeVec4(buf, 16, [4]float32{p.Lo, p.Scale, 0, 0})
	return buf
}

// WorkgroupCounts returns ceil(w/8), ceil(h/8), ceil(d/4) for the 8x8x4
// preprocessing workgroup.
func WorkgroupCounts(dims [3]int) [3]uint32 {
	return [3]uint32{
		uint32((dims[0] + 7) / 8),
		uint32((dims[1] + 7) / 8),
		uint32((dims[2] + 3) / 4),
	}
}

// QuadVertices is a fullscreen quad as two triangles in clip space.
var QuadVertices = [12]float32{
	-1, -1, 1, -1, 1, 1,
	-1, -1, 1, 1, -1, 1,
}

const QuadVertexCount = 6

// QuadVertexLayout describes QuadVertices as vec2<f32> at location 0.
func QuadVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: 8,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		},
	}
}

func quadBytes() []byte {
	buf := make([]byte, len(QuadVertices)*4)
	for i, v := range QuadVertices {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func writeMat(buf []byte, offset int, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(v))
	}
}

func writeVec4(buf []byte, offset int, v [4]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(f))
	}
}
