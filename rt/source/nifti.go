package source

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/volume"
)

const (
	niftiHeaderSize = 348
	niftiMinOffset  = 352
)

var (
	ErrNotNIfTI = errors.New("not a NIfTI-1 file")
	gzipMagic   = [2]byte{0x1f, 0x8b}
	niftiMagic  = "n+1\x00"
	// niftiPairMagic marks a .hdr/.img pair; the samples live in another file.
	niftiPairMagic = "ni1\x00"
)

// Header is the subset of the NIfTI-1 header the viewer uses.
type Header struct {
	ByteOrder binary.ByteOrder
	Dims      [3]int
	// Volumes is the product of dims 4..7; only the first volume is loaded.
	Volumes   int
	Datatype  int16
	BitPix    int16
	PixDims   [3]float32
	VoxOffset int
	SclSlope  float32
	SclInter  float32
}

// Spacing returns the voxel spacing, treating unset pixdims as 1.
func (h Header) Spacing() [3]float32 {
	return volume.UnitSpacing(h.PixDims)
}

// Scaled reports whether scl_slope and scl_inter change the stored values.
func (h Header) Scaled() bool {
	slope := float64(h.SclSlope)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return false
	}
	inter := float64(h.SclInter)
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		return false
	}
	return slope != 1 || inter != 0
}

// ReadHeader parses the fixed 348-byte header. The byte order is detected
// from sizeof_hdr.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [niftiHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: short header", ErrNotNIfTI)
		}
		return Header{}, err
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[0:4]) == niftiHeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[0:4]) == niftiHeaderSize:
		order = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("%w: bad sizeof_hdr", ErrNotNIfTI)
	}
	switch magic := string(raw[344:348]); magic {
	case niftiMagic:
	case niftiPairMagic:
		return Header{}, fmt.Errorf("%w: header of a .hdr/.img pair, only single-file .nii is supported", ErrNotNIfTI)
	default:
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrNotNIfTI, magic)
	}

	h := Header{ByteOrder: order, Volumes: 1}
	ndim := int(int16(order.Uint16(raw[40:42])))
	if ndim < 1 || ndim > 7 {
		return Header{}, fmt.Errorf("nifti: invalid dim[0]=%d", ndim)
	}
	for i := 0; i < 3; i++ {
		h.Dims[i] = 1
		if i+1 <= ndim {
			h.Dims[i] = int(int16(order.Uint16(raw[42+i*2:])))
		}
	}
	for i := 4; i <= ndim; i++ {
		if n := int(int16(order.Uint16(raw[40+i*2:]))); n > 1 {
			h.Volumes *= n
		}
	}
	h.Datatype = int16(order.Uint16(raw[70:72]))
	h.BitPix = int16(order.Uint16(raw[72:74]))
	for i := 0; i < 3; i++ {
		h.PixDims[i] = math.Float32frombits(order.Uint32(raw[80+i*4:]))
	}
	h.VoxOffset = int(math.Float32frombits(order.Uint32(raw[108:112])))
	h.SclSlope = math.Float32frombits(order.Uint32(raw[112:116]))
	h.SclInter = math.Float32frombits(order.Uint32(raw[116:120]))
	if h.VoxOffset < niftiMinOffset {
		h.VoxOffset = niftiMinOffset
	}
	return h, nil
}

// NIfTI decodes single-file NIfTI-1 volumes, gzip-compressed or not.
type NIfTI struct {
	// OnHeader, when set, receives the parsed header before the samples are read.
	OnHeader func(Header)
}

func (n NIfTI) Decode(r io.Reader) (*volume.VoxelVolume, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("nifti: gzip: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if n.OnHeader != nil {
		n.OnHeader(h)
	}
	t, err := volume.ElementTypeFromCode(int(h.Datatype))
	if err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	if _, err := io.CopyN(io.Discard, br, int64(h.VoxOffset-niftiHeaderSize)); err != nil {
		return nil, fmt.Errorf("nifti: skip to voxel data: %w", err)
	}

	if err := volume.CheckDims(h.Dims); err != nil {
		return nil, fmt.Errorf("nifti: %w", err)
	}
	data, err := readSamples(br, h.Dims, t)
	if err != nil {
		return nil, fmt.Errorf("nifti: voxel data: %w", err)
	}
	vol, err := decodeSamples(h.Dims, t, data, h.ByteOrder)
	if err != nil {
		return nil, err
	}
	vol.Spacing = h.Spacing()
	if h.Scaled() {
		return vol.Scaled(h.SclSlope, h.SclInter)
	}
	return vol, nil
}

// readSamples reads exactly the bytes dims of type t need. The buffer grows
// with the input so a header claiming more data than the stream holds fails
// without allocating the claimed size up front.
func readSamples(r io.Reader, dims [3]int, t volume.ElementType) ([]byte, error) {
	want := int64(dims[0]) * int64(dims[1]) * int64(dims[2]) * int64(t.Size())
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, want)
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %d of %d bytes", core.ErrResourceSizeMismatch, n, want)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteNIfTI encodes vol as an uncompressed little-endian single-file NIfTI-1.
func WriteNIfTI(w io.Writer, vol *volume.VoxelVolume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	var hdr [niftiMinOffset]byte
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], niftiHeaderSize)
	le.PutUint16(hdr[40:], 3)
	for i := 0; i < 3; i++ {
		le.PutUint16(hdr[42+i*2:], uint16(vol.Dims[i]))
	}
	for i := 3; i < 7; i++ {
		le.PutUint16(hdr[42+i*2:], 1)
	}
	le.PutUint16(hdr[70:], uint16(vol.Type))
	le.PutUint16(hdr[72:], uint16(vol.Type.Size()*8))
	le.PutUint32(hdr[76:], math.Float32bits(1))
	spacing := vol.VoxelSpacing()
	for i := 0; i < 3; i++ {
		le.PutUint32(hdr[80+i*4:], math.Float32bits(spacing[i]))
	}
	le.PutUint32(hdr[108:], math.Float32bits(niftiMinOffset))
	le.PutUint32(hdr[112:], math.Float32bits(1))
	copy(hdr[344:], niftiMagic)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return binary.Write(w, le, vol.Samples)
}
