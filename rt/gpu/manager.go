package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GpuBufferManager owns the long-lived render resources shared by every
// volume binding: the camera and transfer uniforms, the fullscreen quad, the
// volume sampler and the render bind group layout. Uniform sizes are fixed, so
// buffers are allocated once and bind groups built against them stay valid.
type GpuBufferManager struct {
	session *Session

	CameraBuf   *wgpu.Buffer
	TransferBuf *wgpu.Buffer
	QuadBuf     *wgpu.Buffer
	Sampler     *wgpu.Sampler

	RenderBGL *wgpu.BindGroupLayout
}

func NewGpuBufferManager(session *Session) (*GpuBufferManager, error) {
	m := &GpuBufferManager{session: session}
	if err := m.init(); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func (m *GpuBufferManager) init() error {
	s := m.session
	if _, err := s.EnsureBuffer("CameraUB", &m.CameraBuf, CameraUniformSize, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	if _, err := s.EnsureBuffer("TransferUB", &m.TransferBuf, TransferUniformSize, wgpu.BufferUsageUniform); err != nil {
		return err
	}
	quad := quadBytes()
	if _, err := s.EnsureBuffer("QuadVB", &m.QuadBuf, uint64(len(quad)), wgpu.BufferUsageVertex); err != nil {
		return err
	}
	if err := s.WriteBuffer(m.QuadBuf, 0, quad); err != nil {
		return fmt.Errorf("upload quad: %w", err)
	}

	var err error
	m.Sampler, err = s.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "volume sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}

	m.RenderBGL, err = s.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "volume render",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension3D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
			{
				Binding:    2,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: CameraUniformSize,
				},
			},
			{
				Binding:    3,
				Visibility: wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: TransferUniformSize,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create render bind group layout: %w", err)
	}
	return nil
}

func (m *GpuBufferManager) UpdateCamera(c CameraUniform) error {
	return m.session.WriteBuffer(m.CameraBuf, 0, c.Bytes())
}

func (m *GpuBufferManager) UpdateTransfer(t TransferUniform) error {
	return m.session.WriteBuffer(m.TransferBuf, 0, t.Bytes())
}

// CreateVolumeBindGroup binds a processed volume together with the shared
// sampler and uniforms.
func (m *GpuBufferManager) CreateVolumeBindGroup(pv *ProcessedVolume) (*wgpu.BindGroup, error) {
	bg, err := m.session.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "volume render",
		Layout: m.RenderBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: pv.View},
			{Binding: 1, Sampler: m.Sampler},
			{Binding: 2, Buffer: m.CameraBuf, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: m.TransferBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create volume bind group: %w", err)
	}
	return bg, nil
}

func (m *GpuBufferManager) Release() {
	if m.RenderBGL != nil {
		m.RenderBGL.Release()
		m.RenderBGL = nil
	}
	if m.Sampler != nil {
		m.Sampler.Release()
		m.Sampler = nil
	}
	for _, b := range []**wgpu.Buffer{&m.CameraBuf, &m.TransferBuf, &m.QuadBuf} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
}
