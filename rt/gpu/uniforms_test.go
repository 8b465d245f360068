package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/volumert/rt/core"
)

func f32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestWorkgroupCounts(t *testing.T) {
	cases := []struct {
		dims [3]int
		want [3]uint32
	}{
		{[3]int{8, 8, 4}, [3]uint32{1, 1, 1}},
		{[3]int{9, 8, 5}, [3]uint32{2, 1, 2}},
		{[3]int{130, 130, 130}, [3]uint32{17, 17, 33}},
		{[3]int{1, 1, 1}, [3]uint32{1, 1, 1}},
		{[3]int{512, 512, 256}, [3]uint32{64, 64, 64}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WorkgroupCounts(tc.dims), "dims %v", tc.dims)
	}
}

func TestBoxHalfExtent(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, BoxHalfExtent([3]int{64, 64, 64}, [3]float32{}))
	got := BoxHalfExtent([3]int{128, 64, 32}, [3]float32{})
	assert.InDelta(t, 0.5, got[0], 1e-6)
	assert.InDelta(t, 0.25, got[1], 1e-6)
	assert.InDelta(t, 0.125, got[2], 1e-6)
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, BoxHalfExtent([3]int{}, [3]float32{}))
}

func TestBoxHalfExtent_Anisotropic(t *testing.T) {
	// 256x256x64 slices at 0.5x0.5x2 mm is a 128 mm cube.
	got := BoxHalfExtent([3]int{256, 256, 64}, [3]float32{0.5, 0.5, 2})
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0.5, got[i], 1e-6)
	}

	got = BoxHalfExtent([3]int{100, 100, 100}, [3]float32{1, 1, 3})
	assert.InDelta(t, 0.5/3, got[0], 1e-6)
	assert.InDelta(t, 0.5/3, got[1], 1e-6)
	assert.InDelta(t, 0.5, got[2], 1e-6)
}

func TestCameraUniformLayout(t *testing.T) {
	p := core.DefaultFrameParams()
	u := NewCameraUniform(p, [3]int{128, 64, 32}, [3]float32{})
	buf := u.Bytes()
	require.Len(t, buf, CameraUniformSize)

	m := core.DeriveMatrices(p)
	for i := 0; i < 16; i++ {
		assert.Equal(t, m.InvMVP[i], f32At(buf, i*4))
	}
	assert.Equal(t, u.Eye[2], f32At(buf, 72))
	assert.Equal(t, float32(1), f32At(buf, 76))
	assert.InDelta(t, 0.25, f32At(buf, 84), 1e-6)
	assert.Equal(t, float32(32), f32At(buf, 104))
}

func TestCameraUniformDeterministic(t *testing.T) {
	p := core.DefaultFrameParams()
	p.VolumeRotation = [3]float32{10, 20, 30}
	a := NewCameraUniform(p, [3]int{10, 20, 30}, [3]float32{1, 1, 2}).Bytes()
	b := NewCameraUniform(p.Clone(), [3]int{10, 20, 30}, [3]float32{1, 1, 2}).Bytes()
	assert.Equal(t, a, b)
}

func TestTransferUniformLayout(t *testing.T) {
	p := core.DefaultFrameParams()
	p.SlicePlane = 0.25
	u := NewTransferUniform(p, 4095, 0.75)
	buf := u.Bytes()
	require.Len(t, buf, TransferUniformSize)

	weights := p.Transfer.Weights()
	for i := 0; i < core.MaxTransferWeights; i++ {
		assert.Equal(t, weights[i], f32At(buf, i*4))
	}
	assert.Equal(t, float32(0.25), f32At(buf, 32))
	assert.Equal(t, float32(4095), f32At(buf, 36))
	assert.Equal(t, float32(0.75), f32At(buf, 40))
	assert.Equal(t, uint32(len(p.Transfer)), binary.LittleEndian.Uint32(buf[48:]))
}

func TestTransferUniformClampsSlicePlane(t *testing.T) {
	p := core.DefaultFrameParams()
	p.SlicePlane = 3
	assert.Equal(t, float32(1), NewTransferUniform(p, 0, 0).SlicePlane)
	p.SlicePlane = -1
	assert.Equal(t, float32(0), NewTransferUniform(p, 0, 0).SlicePlane)
}

func TestPreprocessParams(t *testing.T) {
	p := NewPreprocessParams([3]int{130, 64, 7}, 100, 300)
	buf := p.Bytes()
	require.Len(t, buf, 32)
	assert.Equal(t, uint32(130), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[8:]))
	assert.Equal(t, float32(100), f32At(buf, 16))
	assert.InDelta(t, 1.0/200, f32At(buf, 20), 1e-9)

	flat := NewPreprocessParams([3]int{1, 1, 1}, 5, 5)
	assert.Equal(t, float32(0), flat.Scale)
}

func TestQuadBytes(t *testing.T) {
	buf := quadBytes()
	require.Len(t, buf, QuadVertexCount*8)
	assert.Equal(t, float32(-1), f32At(buf, 0))
	assert.Equal(t, float32(1), f32At(buf, len(buf)-4))
	assert.Equal(t, uint64(8), QuadVertexLayout().ArrayStride)
}
