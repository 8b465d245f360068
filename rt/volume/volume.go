package volume

import (
	"fmt"
	"math"
	"strings"

	"github.com/gekko3d/volumert/rt/core"
)

// ElementType identifies the scalar type of the samples. Values are the
// NIfTI-1 datatype codes, which is what volume sources report.
type ElementType int

const (
	Uint8   ElementType = 2
	Int16   ElementType = 4
	Int32   ElementType = 8
	Float32 ElementType = 16
	Uint16  ElementType = 512
)

// Sample is the set of supported element types.
type Sample interface {
	~uint8 | ~int16 | ~int32 | ~uint16 | ~float32
}

func (t ElementType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	}
	return 0
}

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "u8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Uint16:
		return "u16"
	case Float32:
		return "f32"
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

func (t ElementType) Valid() bool {
	return t.Size() != 0
}

// ParseElementType accepts the short names printed by String.
func ParseElementType(s string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8":
		return Uint8, nil
	case "i16", "int16":
		return Int16, nil
	case "i32", "int32":
		return Int32, nil
	case "u16", "uint16":
		return Uint16, nil
	case "f32", "float32":
		return Float32, nil
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// ElementTypeFromCode maps a NIfTI datatype code onto an ElementType.
func ElementTypeFromCode(code int) (ElementType, error) {
	t := ElementType(code)
	if !t.Valid() {
		return 0, fmt.Errorf("unsupported element type code %d", code)
	}
	return t, nil
}

func elementTypeOf[E Sample]() ElementType {
	var zero E
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int16:
		return Int16
	case int32:
		return Int32
	case uint16:
		return Uint16
	case float32:
		return Float32
	}
	return 0
}

// MaxDim is the largest extent accepted on any axis. It matches the WebGPU
// maxTextureDimension3D default limit.
const MaxDim = 2048

// CheckDims rejects non-positive extents and extents no 3-D texture can hold.
func CheckDims(dims [3]int) error {
	for i, d := range dims {
		if d <= 0 || d > MaxDim {
			return fmt.Errorf("%w: dimension %d is %d, want 1..%d", core.ErrResourceSizeMismatch, i, d, MaxDim)
		}
	}
	return nil
}

// VoxelVolume is a read-only regular grid of scalar samples, x fastest.
type VoxelVolume struct {
	Dims    [3]int
	Type    ElementType
	Samples any // []uint8, []int16, []int32, []uint16 or []float32
	// Spacing is the physical voxel size per axis. Zero or negative
	// components read as 1.
	Spacing [3]float32
}

// New wraps samples without copying them.
func New[E Sample](dims [3]int, samples []E) (*VoxelVolume, error) {
	v := &VoxelVolume{Dims: dims, Type: elementTypeOf[E](), Samples: samples}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VoxelVolume) Count() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

func (v *VoxelVolume) Len() int {
	switch s := v.Samples.(type) {
	case []uint8:
		return len(s)
	case []int16:
		return len(s)
	case []int32:
		return len(s)
	case []uint16:
		return len(s)
	case []float32:
		return len(s)
	}
	return -1
}

// Validate checks the dims and that Samples agrees with Type and the
// element count.
func (v *VoxelVolume) Validate() error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", core.ErrResourceSizeMismatch)
	}
	if err := CheckDims(v.Dims); err != nil {
		return err
	}
	if !v.Type.Valid() {
		return fmt.Errorf("%w: unsupported element type %v", core.ErrResourceSizeMismatch, v.Type)
	}
	if got := sampleType(v.Samples); got != v.Type {
		return fmt.Errorf("%w: samples are %v, volume declares %v", core.ErrResourceSizeMismatch, got, v.Type)
	}
	if n := v.Len(); n != v.Count() {
		return fmt.Errorf("%w: %d samples for %dx%dx%d", core.ErrResourceSizeMismatch, n, v.Dims[0], v.Dims[1], v.Dims[2])
	}
	return nil
}

// VoxelSpacing returns Spacing with unset components replaced by 1.
func (v *VoxelVolume) VoxelSpacing() [3]float32 {
	return UnitSpacing(v.Spacing)
}

// PhysicalSize is the extent of the grid in spacing units.
func (v *VoxelVolume) PhysicalSize() [3]float32 {
	return PhysicalSize(v.Dims, v.Spacing)
}

func (v *VoxelVolume) IsIsotropic() bool {
	s := v.VoxelSpacing()
	return s[0] == s[1] && s[1] == s[2]
}

// UnitSpacing replaces non-positive and non-finite components with 1.
func UnitSpacing(spacing [3]float32) [3]float32 {
	var s [3]float32
	for i, f := range spacing {
		if f > 0 && !math.IsInf(float64(f), 0) {
			s[i] = f
		} else {
			s[i] = 1
		}
	}
	return s
}

func PhysicalSize(dims [3]int, spacing [3]float32) [3]float32 {
	s := UnitSpacing(spacing)
	return [3]float32{float32(dims[0]) * s[0], float32(dims[1]) * s[1], float32(dims[2]) * s[2]}
}

func sampleType(s any) ElementType {
	switch s.(type) {
	case []uint8:
		return Uint8
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []uint16:
		return Uint16
	case []float32:
		return Float32
	}
	return 0
}

// Range returns the minimum and maximum sample value.
func (v *VoxelVolume) Range() (lo, hi float32) {
	switch s := v.Samples.(type) {
	case []uint8:
		return sliceRange(s)
	case []int16:
		return sliceRange(s)
	case []int32:
		return sliceRange(s)
	case []uint16:
		return sliceRange(s)
	case []float32:
		return sliceRange(s)
	}
	return 0, 0
}

func sliceRange[E Sample](s []E) (float32, float32) {
	if len(s) == 0 {
		return 0, 0
	}
	lo, hi := float32(s[0]), float32(s[0])
	for _, e := range s[1:] {
		f := float32(e)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	return lo, hi
}

// Normalized returns every sample mapped to [0, 1] over the volume's range.
// A constant volume maps to all zeros.
func (v *VoxelVolume) Normalized() []float32 {
	lo, hi := v.Range()
	scale := float32(0)
	if hi > lo {
		scale = 1 / (hi - lo)
	}
	out := make([]float32, v.Count())
	switch s := v.Samples.(type) {
	case []uint8:
		normalizeInto(out, s, lo, scale)
	case []int16:
		normalizeInto(out, s, lo, scale)
	case []int32:
		normalizeInto(out, s, lo, scale)
	case []uint16:
		normalizeInto(out, s, lo, scale)
	case []float32:
		normalizeInto(out, s, lo, scale)
	}
	return out
}

func normalizeInto[E Sample](dst []float32, src []E, lo, scale float32) {
	for i, e := range src {
		dst[i] = (float32(e) - lo) * scale
	}
}

// Scaled returns a Float32 volume holding slope*s + inter for every sample s.
func (v *VoxelVolume) Scaled(slope, inter float32) (*VoxelVolume, error) {
	out := make([]float32, v.Count())
	switch s := v.Samples.(type) {
	case []uint8:
		scaleInto(out, s, slope, inter)
	case []int16:
		scaleInto(out, s, slope, inter)
	case []int32:
		scaleInto(out, s, slope, inter)
	case []uint16:
		scaleInto(out, s, slope, inter)
	case []float32:
		scaleInto(out, s, slope, inter)
	}
	scaled, err := New(v.Dims, out)
	if err != nil {
		return nil, err
	}
	scaled.Spacing = v.Spacing
	return scaled, nil
}

func scaleInto[E Sample](dst []float32, src []E, slope, inter float32) {
	for i, e := range src {
		dst[i] = float32(e)*slope + inter
	}
}

// FromUnit builds a volume of type t from values in [0, 1], scaled to a
// representative range for t (8-bit, 12-bit CT, Hounsfield-like signed).
func FromUnit(dims [3]int, t ElementType, unit []float32) (*VoxelVolume, error) {
	switch t {
	case Uint8:
		return New(dims, convertUnit[uint8](unit, 0, 255))
	case Uint16:
		return New(dims, convertUnit[uint16](unit, 0, 4095))
	case Int16:
		return New(dims, convertUnit[int16](unit, -1024, 3071))
	case Int32:
		return New(dims, convertUnit[int32](unit, -1024, 3071))
	case Float32:
		return New(dims, convertUnit[float32](unit, 0, 1))
	}
	return nil, fmt.Errorf("%w: unsupported element type %v", core.ErrResourceSizeMismatch, t)
}

func convertUnit[E Sample](unit []float32, lo, hi float64) []E {
	out := make([]E, len(unit))
	isFloat := elementTypeOf[E]() == Float32
	for i, u := range unit {
		f := lo + float64(u)*(hi-lo)
		if !isFloat {
			f = math.Round(f)
		}
		out[i] = E(f)
	}
	return out
}
