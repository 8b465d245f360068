package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/volumert/rt/core"
)

// SurfaceSource is anything that can back a presentation surface; in
// practice a GLFW window.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	FramebufferSize() (width, height int)
}

type Options struct {
	Label           string
	PowerPreference wgpu.PowerPreference
	// RequiredFeatures fail initialization when the adapter lacks them.
	RequiredFeatures []wgpu.FeatureName
	// OptionalFeatures are requested only when the adapter reports them.
	OptionalFeatures []wgpu.FeatureName
	PresentMode      wgpu.PresentMode
	ClearColor       wgpu.Color
}

func DefaultOptions() Options {
	return Options{
		Label:            "volumert device",
		PowerPreference:  wgpu.PowerPreferenceHighPerformance,
		OptionalFeatures: []wgpu.FeatureName{wgpu.FeatureNameFloat32Filterable},
		PresentMode:      wgpu.PresentModeFifo,
		ClearColor:       wgpu.Color{R: 0, G: 0, B: 0, A: 1},
	}
}

// Session owns the GPU instance, device, queue and the configured
// presentation surface. It is created once and shared read-only by every
// pass; only the render goroutine encodes frames.
type Session struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration
	Features []wgpu.FeatureName

	opts Options
	log  core.Logger

	msaaTexture *wgpu.Texture
	msaaView    *wgpu.TextureView
	msaaSamples uint32
}

// Initialize acquires an adapter compatible with src, requests a device with
// the optional features the adapter supports and configures the surface
// with the adapter's preferred format.
func Initialize(src SurfaceSource, opts Options, log core.Logger) (*Session, error) {
	log = core.OrNop(log)
	if src == nil {
		return nil, core.ErrPlatformUnsupported
	}
	desc := src.SurfaceDescriptor()
	if desc == nil {
		return nil, core.ErrPlatformUnsupported
	}

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, core.ErrPlatformUnsupported
	}
	surface := instance.CreateSurface(desc)
	if surface == nil {
		instance.Release()
		return nil, core.ErrPlatformUnsupported
	}
	s, err := newSession(instance, surface, opts, log)
	if err != nil {
		return nil, err
	}

	caps := surface.GetCapabilities(s.Adapter)
	if len(caps.Formats) == 0 {
		s.Release()
		return nil, fmt.Errorf("%w: surface reports no formats", core.ErrDeviceUnavailable)
	}
	alpha := wgpu.CompositeAlphaModeAuto
	if len(caps.AlphaModes) > 0 {
		alpha = caps.AlphaModes[0]
	}
	width, height := src.FramebufferSize()
	s.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: opts.PresentMode,
		AlphaMode:   alpha,
	}
	surface.Configure(s.Adapter, s.Device, s.Config)

	log.Infof("gpu session ready: format=%v size=%dx%d features=%v",
		s.Config.Format, s.Config.Width, s.Config.Height, s.Features)
	return s, nil
}

// InitializeHeadless acquires a device without a presentation surface. The
// session runs compute passes; EncodeRenderPass fails on it.
func InitializeHeadless(opts Options, log core.Logger) (*Session, error) {
	log = core.OrNop(log)
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, core.ErrPlatformUnsupported
	}
	s, err := newSession(instance, nil, opts, log)
	if err != nil {
		return nil, err
	}
	log.Infof("headless gpu session ready: features=%v", s.Features)
	return s, nil
}

// newSession requests an adapter and device. It takes ownership of instance
// and surface and releases them on failure.
func newSession(instance *wgpu.Instance, surface *wgpu.Surface, opts Options, log core.Logger) (*Session, error) {
	s := &Session{Instance: instance, Surface: surface, opts: opts, log: log}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   opts.PowerPreference,
	})
	if err != nil || adapter == nil {
		s.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", core.ErrDeviceUnavailable, err)
	}
	s.Adapter = adapter

	for _, f := range opts.RequiredFeatures {
		if !adapter.HasFeature(f) {
			s.Release()
			return nil, fmt.Errorf("%w: adapter lacks required feature %v", core.ErrDeviceUnavailable, f)
		}
		s.Features = append(s.Features, f)
	}
	for _, f := range opts.OptionalFeatures {
		if adapter.HasFeature(f) {
			s.Features = append(s.Features, f)
		} else {
			log.Debugf("adapter lacks optional feature %v", f)
		}
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            opts.Label,
		RequiredFeatures: s.Features,
	})
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("%w: request device: %v", core.ErrDeviceUnavailable, err)
	}
	s.Device = device
	s.Queue = device.GetQueue()
	return s, nil
}

// Format is the surface format, or RGBA8Unorm for a headless session.
func (s *Session) Format() wgpu.TextureFormat {
	if s.Config == nil {
		return wgpu.TextureFormatRGBA8Unorm
	}
	return s.Config.Format
}

func (s *Session) Aspect() float32 {
	if s.Config == nil || s.Config.Height == 0 {
		return 1
	}
	return float32(s.Config.Width) / float32(s.Config.Height)
}

// Resize reconfigures the surface. Zero sizes (minimized windows) are ignored.
func (s *Session) Resize(width, height int) {
	if width <= 0 || height <= 0 || s.Surface == nil {
		return
	}
	if uint32(width) == s.Config.Width && uint32(height) == s.Config.Height {
		return
	}
	s.Config.Width = uint32(width)
	s.Config.Height = uint32(height)
	s.Surface.Configure(s.Adapter, s.Device, s.Config)
	s.releaseMSAA()
	s.log.Debugf("surface resized to %dx%d", width, height)
}

// EnsureBuffer returns *buf when it already holds size bytes, otherwise it
// releases it and allocates a new buffer with usage|CopyDst.
func (s *Session) EnsureBuffer(label string, buf **wgpu.Buffer, size uint64, usage wgpu.BufferUsage) (bool, error) {
	if size%4 != 0 {
		size += 4 - size%4
	}
	current := *buf
	if current != nil && current.GetSize() >= size {
		return false, nil
	}
	if current != nil {
		current.Release()
		*buf = nil
	}
	b, err := s.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return false, fmt.Errorf("create buffer %q: %w", label, err)
	}
	*buf = b
	return true, nil
}

func (s *Session) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) error {
	return s.Queue.WriteBuffer(buf, offset, data)
}

// RenderPipeline pairs a device pipeline with the descriptor it was built from.
type RenderPipeline struct {
	Pipeline   *wgpu.RenderPipeline
	Descriptor *RenderPipelineDescriptor
}

func (s *Session) CreateRenderPipeline(d *RenderPipelineDescriptor) (*RenderPipeline, error) {
	for _, a := range d.Advisories() {
		s.log.Warnf("pipeline %q: %s", d.Label(), a)
	}
	p, err := s.Device.CreateRenderPipeline(d.WGPU())
	if err != nil {
		return nil, fmt.Errorf("create render pipeline %q: %w", d.Label(), err)
	}
	return &RenderPipeline{Pipeline: p, Descriptor: d}, nil
}

func (s *Session) CreateComputePipeline(d *ComputePipelineDescriptor) (*wgpu.ComputePipeline, error) {
	p, err := s.Device.CreateComputePipeline(d.WGPU())
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline %q: %w", d.Config().Label, err)
	}
	return p, nil
}

// Frame is an encoded but not yet submitted render pass together with the
// swapchain image it targets.
type Frame struct {
	Commands *wgpu.CommandBuffer
	target   *wgpu.Texture
	view     *wgpu.TextureView
}

func (f *Frame) release() {
	if f.Commands != nil {
		f.Commands.Release()
	}
	if f.view != nil {
		f.view.Release()
	}
	if f.target != nil {
		f.target.Release()
	}
}

// EncodeRenderPass records one render pass that clears the current surface
// image, binds pipeline, the vertex buffer at slot 0 and, when non-nil,
// bindGroup at group 0, then draws vertexCount vertices. Multisampled
// pipelines render into an intermediate target resolved onto the surface
// image. Nothing reaches the GPU until Submit.
func (s *Session) EncodeRenderPass(vertexCount uint32, pipeline *RenderPipeline, vertexBuffer *wgpu.Buffer, bindGroup *wgpu.BindGroup) (*Frame, error) {
	if s.Surface == nil {
		return nil, fmt.Errorf("%w: session has no surface", core.ErrPlatformUnsupported)
	}
	target, err := s.Surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("acquire surface texture: %w", err)
	}
	frame := &Frame{target: target}
	frame.view, err = target.CreateView(nil)
	if err != nil {
		frame.release()
		return nil, fmt.Errorf("surface view: %w", err)
	}
	frame.Commands, err = s.encodeInto(frame.view, vertexCount, pipeline, vertexBuffer, bindGroup)
	if err != nil {
		frame.release()
		return nil, err
	}
	return frame, nil
}

// encodeInto records the draw against view.
func (s *Session) encodeInto(view *wgpu.TextureView, vertexCount uint32, pipeline *RenderPipeline, vertexBuffer *wgpu.Buffer, bindGroup *wgpu.BindGroup) (*wgpu.CommandBuffer, error) {
	attachment := wgpu.RenderPassColorAttachment{
		View:       view,
		LoadOp:     wgpu.LoadOpClear,
		StoreOp:    wgpu.StoreOpStore,
		ClearValue: s.opts.ClearColor,
	}
	if samples := pipeline.Descriptor.SampleCount(); samples > 1 {
		msaa, err := s.ensureMSAA(samples)
		if err != nil {
			return nil, err
		}
		attachment.View = msaa
		attachment.ResolveTarget = view
		attachment.StoreOp = wgpu.StoreOpDiscard
	}

	encoder, err := s.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{attachment},
	})
	pass.SetPipeline(pipeline.Pipeline)
	if bindGroup != nil {
		pass.SetBindGroup(0, bindGroup, nil)
	}
	pass.SetVertexBuffer(0, vertexBuffer, 0, wgpu.WholeSize)
	pass.Draw(vertexCount, 1, 0, 0)
	if err := pass.End(); err != nil {
		return nil, fmt.Errorf("end render pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("finish encoder: %w", err)
	}
	return cmd, nil
}

// Submit hands the frame to the queue in order and presents it.
func (s *Session) Submit(frame *Frame) {
	defer frame.release()
	s.Queue.Submit(frame.Commands)
	s.Surface.Present()
}

func (s *Session) ensureMSAA(samples uint32) (*wgpu.TextureView, error) {
	if s.msaaView != nil && s.msaaSamples == samples {
		return s.msaaView, nil
	}
	if s.Config == nil {
		return nil, fmt.Errorf("%w: multisampling needs a surface", core.ErrPipelineConfiguration)
	}
	s.releaseMSAA()
	tex, err := s.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "msaa color",
		Size: wgpu.Extent3D{
			Width:              s.Config.Width,
			Height:             s.Config.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        s.Config.Format,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("create msaa target: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create msaa view: %w", err)
	}
	s.msaaTexture, s.msaaView, s.msaaSamples = tex, view, samples
	return view, nil
}

func (s *Session) releaseMSAA() {
	if s.msaaView != nil {
		s.msaaView.Release()
		s.msaaView = nil
	}
	if s.msaaTexture != nil {
		s.msaaTexture.Release()
		s.msaaTexture = nil
	}
	s.msaaSamples = 0
}

// Release frees every handle in reverse creation order.
func (s *Session) Release() {
	s.releaseMSAA()
	if s.Queue != nil {
		s.Queue.Release()
		s.Queue = nil
	}
	if s.Device != nil {
		s.Device.Release()
		s.Device = nil
	}
	if s.Adapter != nil {
		s.Adapter.Release()
		s.Adapter = nil
	}
	if s.Surface != nil {
		s.Surface.Release()
		s.Surface = nil
	}
	if s.Instance != nil {
		s.Instance.Release()
		s.Instance = nil
	}
}
