package volume

import (
	"fmt"
	"unsafe"

	"github.com/gekko3d/volumert/rt/core"
)

// RowAlignment is the byte alignment every texture-upload row must start on.
const RowAlignment = 256

// RowStrideBytes returns the smallest multiple of RowAlignment that holds
// width elements of elemSize bytes.
func RowStrideBytes(width, elemSize int) int {
	naive := width * elemSize
	return (naive + RowAlignment - 1) / RowAlignment * RowAlignment
}

// PaddedUpload is a row-aligned copy (or view) of a volume's samples, ready
// for a texture upload with BytesPerRow = RowStrideBytes.
type PaddedUpload struct {
	// Data has the same element type as the source volume.
	Data           any
	Bytes          []byte
	RowStrideBytes int
	// Aliased reports that Data is the source slice itself (no copy was needed).
	Aliased bool
}

// Pad aligns every row of vol to RowAlignment bytes. When rows are already
// aligned the source samples are returned unchanged; otherwise a new
// zero-filled buffer of the same element type is allocated and each of the
// h*d rows is copied in, leaving the tail of every row zero.
func Pad(vol *VoxelVolume) (PaddedUpload, error) {
	if err := vol.Validate(); err != nil {
		return PaddedUpload{}, err
	}
	w, h, d := vol.Dims[0], vol.Dims[1], vol.Dims[2]
	switch s := vol.Samples.(type) {
	case []uint8:
		return padRows(s, w, h*d)
	case []int16:
		return padRows(s, w, h*d)
	case []int32:
		return padRows(s, w, h*d)
	case []uint16:
		return padRows(s, w, h*d)
	case []float32:
		return padRows(s, w, h*d)
	}
	return PaddedUpload{}, fmt.Errorf("%w: unsupported samples %T", core.ErrResourceSizeMismatch, vol.Samples)
}

func padRows[E Sample](src []E, w, rows int) (PaddedUpload, error) {
	elemSize := int(unsafe.Sizeof(src[0]))
	naive := w * elemSize
	stride := RowStrideBytes(w, elemSize)
	if stride == naive {
		return PaddedUpload{Data: src, Bytes: bytesOf(src), RowStrideBytes: naive, Aliased: true}, nil
	}
	if stride%elemSize != 0 {
		return PaddedUpload{}, fmt.Errorf("%w: stride %d not a multiple of element size %d", core.ErrResourceSizeMismatch, stride, elemSize)
	}

	strideElems := stride / elemSize
	dst := make([]E, strideElems*rows)
	for r := 0; r < rows; r++ {
		copy(dst[r*strideElems:r*strideElems+w], src[r*w:(r+1)*w])
	}
	return PaddedUpload{Data: dst, Bytes: bytesOf(dst), RowStrideBytes: stride}, nil
}

// Unpad extracts the first width elements of every row, reversing Pad.
func Unpad(up PaddedUpload, dims [3]int) (*VoxelVolume, error) {
	w, rows := dims[0], dims[1]*dims[2]
	switch s := up.Data.(type) {
	case []uint8:
		return unpadRows(s, dims, w, rows, up.RowStrideBytes)
	case []int16:
		return unpadRows(s, dims, w, rows, up.RowStrideBytes)
	case []int32:
		return unpadRows(s, dims, w, rows, up.RowStrideBytes)
	case []uint16:
		return unpadRows(s, dims, w, rows, up.RowStrideBytes)
	case []float32:
		return unpadRows(s, dims, w, rows, up.RowStrideBytes)
	}
	return nil, fmt.Errorf("%w: unsupported samples %T", core.ErrResourceSizeMismatch, up.Data)
}

func unpadRows[E Sample](src []E, dims [3]int, w, rows, stride int) (*VoxelVolume, error) {
	var zero E
	strideElems := stride / int(unsafe.Sizeof(zero))
	if strideElems < w || len(src) != strideElems*rows {
		return nil, fmt.Errorf("%w: %d elements for %d rows of stride %d", core.ErrResourceSizeMismatch, len(src), rows, strideElems)
	}
	out := make([]E, w*rows)
	for r := 0; r < rows; r++ {
		copy(out[r*w:(r+1)*w], src[r*strideElems:r*strideElems+w])
	}
	return New(dims, out)
}

func bytesOf[E Sample](s []E) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero E
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}
