package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/gekko3d/volumert/rt/volume"
)

// Raw decodes headerless samples laid out x-fastest.
type Raw struct {
	Dims      [3]int
	Type      volume.ElementType
	BigEndian bool
	// Offset bytes are skipped before the samples.
	Offset int
	// Spacing is the physical voxel size; zero components read as 1.
	Spacing [3]float32
}

func (d Raw) Decode(r io.Reader) (*volume.VoxelVolume, error) {
	if !d.Type.Valid() {
		return nil, fmt.Errorf("raw: invalid element type %v", d.Type)
	}
	if err := volume.CheckDims(d.Dims); err != nil {
		return nil, fmt.Errorf("raw: %w", err)
	}
	if d.Offset > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(d.Offset)); err != nil {
			return nil, fmt.Errorf("raw: skip header: %w", err)
		}
	}
	data, err := readSamples(r, d.Dims, d.Type)
	if err != nil {
		return nil, fmt.Errorf("raw data: %w", err)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if d.BigEndian {
		order = binary.BigEndian
	}
	vol, err := decodeSamples(d.Dims, d.Type, data, order)
	if err != nil {
		return nil, err
	}
	vol.Spacing = d.Spacing
	return vol, nil
}

func decodeSamples(dims [3]int, t volume.ElementType, data []byte, order binary.ByteOrder) (*volume.VoxelVolume, error) {
	switch t {
	case volume.Uint8:
		return volume.New(dims, append([]uint8(nil), data...))
	case volume.Int16:
		return volume.New(dims, convert(data, 2, func(b []byte) int16 { return int16(order.Uint16(b)) }))
	case volume.Uint16:
		return volume.New(dims, convert(data, 2, order.Uint16))
	case volume.Int32:
		return volume.New(dims, convert(data, 4, func(b []byte) int32 { return int32(order.Uint32(b)) }))
	case volume.Float32:
		return volume.New(dims, convert(data, 4, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }))
	}
	return nil, fmt.Errorf("unsupported element type %v", t)
}

func convert[E volume.Sample](data []byte, size int, at func([]byte) E) []E {
	out := make([]E, len(data)/size)
	for i := range out {
		out[i] = at(data[i*size:])
	}
	return out
}
