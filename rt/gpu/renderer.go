package gpu

import (
	"context"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/shaders"
	"github.com/gekko3d/volumert/rt/volume"
)

// VolumeBinding is everything a frame needs to draw one loaded volume. The
// bind group always references Processed; both come from the same load.
type VolumeBinding struct {
	ID           uuid.UUID
	Dims         [3]int
	Spacing      [3]float32
	Type         volume.ElementType
	Processed    *ProcessedVolume
	BindGroup    *wgpu.BindGroup
	MaxGradient  float32
	MinIntensity float32
	MaxIntensity float32
}

func (b *VolumeBinding) Release() {
	if b == nil {
		return
	}
	if b.BindGroup != nil {
		b.BindGroup.Release()
	}
	b.Processed.Release()
}

// FrameRenderer draws the fullscreen ray-marching pass.
type FrameRenderer struct {
	session  *Session
	buffers  *GpuBufferManager
	layout   *wgpu.PipelineLayout
	pipeline *RenderPipeline
	log      core.Logger
}

func NewFrameRenderer(session *Session, sampleCount uint32, log core.Logger) (*FrameRenderer, error) {
	r := &FrameRenderer{session: session, log: core.OrNop(log)}
	if err := r.init(sampleCount); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *FrameRenderer) init(sampleCount uint32) error {
	var err error
	r.buffers, err = NewGpuBufferManager(r.session)
	if err != nil {
		return err
	}
	device := r.session.Device

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "raymarch",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.RaymarchWGSL},
	})
	if err != nil {
		return fmt.Errorf("compile raymarch shader: %w", err)
	}
	defer module.Release()

	r.layout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "raymarch",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.buffers.RenderBGL},
	})
	if err != nil {
		return fmt.Errorf("create raymarch pipeline layout: %w", err)
	}

	desc, err := BuildRenderPipeline(DefaultRenderPipelineConfig().
		WithLabel("raymarch").
		WithLayout(r.layout).
		WithShaderModule(module, "", "").
		WithVertexBuffers(QuadVertexLayout()).
		WithTargetFormats(r.session.Format()).
		WithMultisample(sampleCount))
	if err != nil {
		return err
	}
	r.pipeline, err = r.session.CreateRenderPipeline(desc)
	return err
}

// Bind creates the render bind group for a processed volume.
func (r *FrameRenderer) Bind(pv *ProcessedVolume) (*wgpu.BindGroup, error) {
	return r.buffers.CreateVolumeBindGroup(pv)
}

func (r *FrameRenderer) WriteUniforms(cam CameraUniform, tf TransferUniform) error {
	if err := r.buffers.UpdateCamera(cam); err != nil {
		return fmt.Errorf("write camera uniform: %w", err)
	}
	if err := r.buffers.UpdateTransfer(tf); err != nil {
		return fmt.Errorf("write transfer uniform: %w", err)
	}
	return nil
}

// Draw encodes and submits exactly one draw of the fullscreen quad.
func (r *FrameRenderer) Draw(b *VolumeBinding) error {
	frame, err := r.session.EncodeRenderPass(QuadVertexCount, r.pipeline, r.buffers.QuadBuf, b.BindGroup)
	if err != nil {
		return err
	}
	r.session.Submit(frame)
	return nil
}

func (r *FrameRenderer) Resize(width, height int) {
	r.session.Resize(width, height)
}

func (r *FrameRenderer) Release() {
	if r.pipeline != nil {
		r.pipeline.Pipeline.Release()
		r.pipeline = nil
	}
	if r.layout != nil {
		r.layout.Release()
		r.layout = nil
	}
	if r.buffers != nil {
		r.buffers.Release()
		r.buffers = nil
	}
}

// VolumeLoader runs the GPU side of a load: preprocess, then bind.
type VolumeLoader struct {
	pass     *PreprocessPass
	renderer *FrameRenderer
	log      core.Logger
}

func NewVolumeLoader(pass *PreprocessPass, renderer *FrameRenderer, log core.Logger) *VolumeLoader {
	return &VolumeLoader{pass: pass, renderer: renderer, log: core.OrNop(log)}
}

func (l *VolumeLoader) Process(ctx context.Context, id uuid.UUID, vol *volume.VoxelVolume) (*VolumeBinding, error) {
	pv, maxGrad, err := l.pass.Run(ctx, vol)
	if err != nil {
		return nil, err
	}
	bg, err := l.renderer.Bind(pv)
	if err != nil {
		pv.Release()
		return nil, err
	}
	lo, hi := vol.Range()
	l.log.Debugf("load %s: bound %v volume %v", id, vol.Type, vol.Dims)
	if !vol.IsIsotropic() {
		l.log.Debugf("load %s: anisotropic spacing %v, extent %v", id, vol.VoxelSpacing(), vol.PhysicalSize())
	}
	return &VolumeBinding{
		ID:           id,
		Dims:         vol.Dims,
		Spacing:      vol.VoxelSpacing(),
		Type:         vol.Type,
		Processed:    pv,
		BindGroup:    bg,
		MaxGradient:  maxGrad,
		MinIntensity: lo,
		MaxIntensity: hi,
	}, nil
}
