package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/shaders"
	"github.com/gekko3d/volumert/rt/volume"
)

// RawVolume is a volume uploaded in its native element type.
type RawVolume struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Dims    [3]int
	Type    volume.ElementType
	Lo, Hi  float32
}

func (r *RawVolume) Release() {
	if r == nil {
		return
	}
	if r.View != nil {
		r.View.Release()
	}
	if r.Texture != nil {
		r.Texture.Release()
	}
}

// ProcessedVolume is the rgba16float texture {intensity, gx, gy, gz}.
type ProcessedVolume struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Dims    [3]int
}

func (p *ProcessedVolume) Release() {
	if p == nil {
		return
	}
	if p.View != nil {
		p.View.Release()
	}
	if p.Texture != nil {
		p.Texture.Release()
	}
}

type preprocessVariant struct {
	layout   *wgpu.BindGroupLayout
	pipeline *wgpu.ComputePipeline
}

// PreprocessPass turns a raw volume into the processed gradient texture and
// the maximum gradient magnitude. Compute pipelines are built lazily, one per
// raw element type.
type PreprocessPass struct {
	session *Session
	log     core.Logger

	mu       sync.Mutex
	variants map[volume.ElementType]*preprocessVariant
}

func NewPreprocessPass(session *Session, log core.Logger) *PreprocessPass {
	return &PreprocessPass{
		session:  session,
		log:      core.OrNop(log),
		variants: make(map[volume.ElementType]*preprocessVariant),
	}
}

// Upload pads vol's rows and copies them into a new 3-D texture whose format
// keeps the element type.
func (p *PreprocessPass) Upload(vol *volume.VoxelVolume) (*RawVolume, error) {
	format, err := RawFormatFor(vol.Type)
	if err != nil {
		return nil, err
	}
	up, err := volume.Pad(vol)
	if err != nil {
		return nil, err
	}
	w, h, d := uint32(vol.Dims[0]), uint32(vol.Dims[1]), uint32(vol.Dims[2])
	extent := wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: d}

	tex, err := p.session.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "raw volume",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension3D,
		Format:        format.Texture,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create raw volume texture: %w", err)
	}
	raw := &RawVolume{Texture: tex, Dims: vol.Dims, Type: vol.Type}
	raw.Lo, raw.Hi = vol.Range()

	err = p.session.Queue.WriteTexture(
		tex.AsImageCopy(),
		up.Bytes,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(up.RowStrideBytes),
			RowsPerImage: h,
		},
		&extent,
	)
	if err != nil {
		raw.Release()
		return nil, fmt.Errorf("upload raw volume: %w", err)
	}
	raw.View, err = tex.CreateView(nil)
	if err != nil {
		raw.Release()
		return nil, fmt.Errorf("raw volume view: %w", err)
	}
	p.log.Debugf("uploaded %v volume %v (row stride %d, aliased=%v)", vol.Type, vol.Dims, up.RowStrideBytes, up.Aliased)
	return raw, nil
}

// Run uploads vol and runs the preprocessing kernel over it.
func (p *PreprocessPass) Run(ctx context.Context, vol *volume.VoxelVolume) (*ProcessedVolume, float32, error) {
	raw, err := p.Upload(vol)
	if err != nil {
		return nil, 0, err
	}
	defer raw.Release()
	return p.Dispatch(ctx, raw)
}

// Dispatch writes the processed texture for raw and returns it with the
// largest gradient magnitude. It waits for the GPU through a buffer map, so
// by the time it returns the processed texture is complete.
func (p *PreprocessPass) Dispatch(ctx context.Context, raw *RawVolume) (*ProcessedVolume, float32, error) {
	variant, err := p.variant(raw.Type)
	if err != nil {
		return nil, 0, err
	}
	device := p.session.Device

	out, err := p.createProcessed(raw.Dims)
	if err != nil {
		return nil, 0, err
	}
	ok := false
	defer func() {
		if !ok {
			out.Release()
		}
	}()

	var maxBuf, readBuf, paramsBuf *wgpu.Buffer
	defer func() {
		for _, b := range []*wgpu.Buffer{maxBuf, readBuf, paramsBuf} {
			if b != nil {
				b.Release()
			}
		}
	}()
	if _, err = p.session.EnsureBuffer("max gradient", &maxBuf, MaxGradientSize, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc); err != nil {
		return nil, 0, err
	}
	if _, err = p.session.EnsureBuffer("preprocess params", &paramsBuf, 32, wgpu.BufferUsageUniform); err != nil {
		return nil, 0, err
	}
	readBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "max gradient readback",
		Size:  MaxGradientSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create readback buffer: %w", err)
	}

	if err = p.session.WriteBuffer(maxBuf, 0, make([]byte, MaxGradientSize)); err != nil {
		return nil, 0, err
	}
	params := NewPreprocessParams(raw.Dims, raw.Lo, raw.Hi)
	if err = p.session.WriteBuffer(paramsBuf, 0, params.Bytes()); err != nil {
		return nil, 0, err
	}

	bg, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "preprocess",
		Layout: variant.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: raw.View},
			{Binding: 1, TextureView: out.View},
			{Binding: 2, Buffer: maxBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: paramsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create preprocess bind group: %w", err)
	}
	defer bg.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	groups := WorkgroupCounts(raw.Dims)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(variant.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
	if err = pass.End(); err != nil {
		return nil, 0, fmt.Errorf("end preprocess pass: %w", err)
	}
	encoder.CopyBufferToBuffer(maxBuf, 0, readBuf, 0, MaxGradientSize)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, 0, fmt.Errorf("finish preprocess encoder: %w", err)
	}
	p.session.Queue.Submit(cmd)
	cmd.Release()

	bits, err := readUint32(ctx, device, readBuf)
	if err != nil {
		return nil, 0, err
	}
	maxGrad := core.FromOrderedBits(bits)
	p.log.Debugf("preprocessed %v in %v workgroups, max gradient %.6f", raw.Dims, groups, maxGrad)

	ok = true
	return out, maxGrad, nil
}

func (p *PreprocessPass) createProcessed(dims [3]int) (*ProcessedVolume, error) {
	tex, err := p.session.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "processed volume",
		Size: wgpu.Extent3D{
			Width:              uint32(dims[0]),
			Height:             uint32(dims[1]),
			DepthOrArrayLayers: uint32(dims[2]),
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension3D,
		Format:        ProcessedFormat,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("create processed texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("processed texture view: %w", err)
	}
	return &ProcessedVolume{Texture: tex, View: view, Dims: dims}, nil
}

func (p *PreprocessPass) variant(t volume.ElementType) (*preprocessVariant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.variants[t]; ok {
		return v, nil
	}

	format, err := RawFormatFor(t)
	if err != nil {
		return nil, err
	}
	code, err := shaders.PreprocessWGSL(format.WGSL)
	if err != nil {
		return nil, err
	}
	device := p.session.Device
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "preprocess " + t.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("compile preprocess shader: %w", err)
	}
	defer module.Release()

	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "preprocess " + t.String(),
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageCompute,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    format.SampleType,
					ViewDimension: wgpu.TextureViewDimension3D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageCompute,
				StorageTexture: wgpu.StorageTextureBindingLayout{
					Access:        wgpu.StorageTextureAccessWriteOnly,
					Format:        ProcessedFormat,
					ViewDimension: wgpu.TextureViewDimension3D,
				},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeStorage,
					MinBindingSize: MaxGradientSize,
				},
			},
			{
				Binding:    3,
				Visibility: wgpu.ShaderStageCompute,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: 32,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create preprocess bind group layout: %w", err)
	}
	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "preprocess " + t.String(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("create preprocess pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	desc, err := BuildComputePipeline(ComputePipelineConfig{
		Label:  "preprocess " + t.String(),
		Layout: pipelineLayout,
		Module: module,
	})
	if err != nil {
		layout.Release()
		return nil, err
	}
	pipeline, err := p.session.CreateComputePipeline(desc)
	if err != nil {
		layout.Release()
		return nil, err
	}

	v := &preprocessVariant{layout: layout, pipeline: pipeline}
	p.variants[t] = v
	return v, nil
}

func (p *PreprocessPass) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for t, v := range p.variants {
		v.pipeline.Release()
		v.layout.Release()
		delete(p.variants, t)
	}
}
