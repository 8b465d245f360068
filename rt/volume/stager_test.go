package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/volumert/rt/core"
)

func TestRowStrideBytes(t *testing.T) {
	tests := []struct {
		width, elemSize, want int
	}{
		{1, 1, 256},
		{256, 1, 256},
		{257, 1, 512},
		{128, 2, 256},
		{130, 2, 512},
		{64, 4, 256},
		{65, 4, 512},
		{1000, 4, 4096},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RowStrideBytes(tt.width, tt.elemSize), "width=%d elem=%d", tt.width, tt.elemSize)
	}
}

func TestRowStrideBytes_SmallestMultiple(t *testing.T) {
	for _, es := range []int{1, 2, 4} {
		for w := 1; w <= 600; w++ {
			s := RowStrideBytes(w, es)
			naive := w * es
			require.Zero(t, s%RowAlignment)
			require.GreaterOrEqual(t, s, naive)
			require.Less(t, s-RowAlignment, naive, "stride %d is not the smallest for %d bytes", s, naive)
		}
	}
}

func TestPad_ScenarioU16(t *testing.T) {
	vol, err := Ramp([3]int{130, 130, 130}, 0, Uint16)
	require.NoError(t, err)

	up, err := Pad(vol)
	require.NoError(t, err)

	assert.Equal(t, 260, 130*Uint16.Size())
	assert.Equal(t, 512, up.RowStrideBytes)
	assert.Len(t, up.Bytes, 512*130*130)
	assert.False(t, up.Aliased)
	assert.IsType(t, []uint16{}, up.Data)
}

func TestPad_AlignedRowsAreNotCopied(t *testing.T) {
	samples := make([]uint8, 256*3*2)
	for i := range samples {
		samples[i] = uint8(i)
	}
	vol, err := New([3]int{256, 3, 2}, samples)
	require.NoError(t, err)

	up, err := Pad(vol)
	require.NoError(t, err)
	assert.True(t, up.Aliased)
	assert.Equal(t, 256, up.RowStrideBytes)

	// same backing array
	samples[10] = 99
	assert.Equal(t, uint8(99), up.Bytes[10])
}

func TestPad_PaddingIsZero(t *testing.T) {
	vol, err := FromUnit([3]int{3, 2, 2}, Int16, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	up, err := Pad(vol)
	require.NoError(t, err)
	require.Equal(t, 256, up.RowStrideBytes)

	for row := 0; row < 4; row++ {
		rowBytes := up.Bytes[row*256 : (row+1)*256]
		for i := 3 * 2; i < 256; i++ {
			require.Zero(t, rowBytes[i], "row %d byte %d", row, i)
		}
	}
}

func TestPad_RoundTripAllTypes(t *testing.T) {
	dims := [3]int{37, 5, 3}
	for _, typ := range []ElementType{Uint8, Int16, Int32, Uint16, Float32} {
		t.Run(typ.String(), func(t *testing.T) {
			vol, err := Sphere(dims, 0.9, typ)
			require.NoError(t, err)

			up, err := Pad(vol)
			require.NoError(t, err)
			assert.Equal(t, RowStrideBytes(dims[0], typ.Size())*dims[1]*dims[2], len(up.Bytes))

			back, err := Unpad(up, dims)
			require.NoError(t, err)
			assert.Equal(t, vol.Type, back.Type)
			assert.Equal(t, vol.Samples, back.Samples)
		})
	}
}

func TestPad_InvalidDims(t *testing.T) {
	tests := []struct {
		name string
		vol  *VoxelVolume
	}{
		{"nil", nil},
		{"zero width", &VoxelVolume{Dims: [3]int{0, 1, 1}, Type: Uint8, Samples: []uint8{}}},
		{"negative depth", &VoxelVolume{Dims: [3]int{1, 1, -1}, Type: Uint8, Samples: []uint8{1}}},
		{"short samples", &VoxelVolume{Dims: [3]int{2, 2, 2}, Type: Uint8, Samples: []uint8{1, 2, 3}}},
		{"type mismatch", &VoxelVolume{Dims: [3]int{1, 1, 1}, Type: Int16, Samples: []uint8{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pad(tt.vol)
			assert.ErrorIs(t, err, core.ErrResourceSizeMismatch)
		})
	}
}
