package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/volumert/rt/core"
)

const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
	DefaultComputeEntry  = "main"
	DefaultSampleCount   = 4
)

// PipelineConfigError names the first required field that was missing when
// a pipeline descriptor was built.
type PipelineConfigError struct {
	Pipeline string
	Field    string
}

func (e *PipelineConfigError) Error() string {
	if e.Pipeline != "" {
		return fmt.Sprintf("pipeline %q: %s must be set", e.Pipeline, e.Field)
	}
	return fmt.Sprintf("pipeline: %s must be set", e.Field)
}

func (e *PipelineConfigError) Unwrap() error { return core.ErrPipelineConfiguration }

// DepthStencilConfig is the optional depth attachment state.
type DepthStencilConfig struct {
	Format            wgpu.TextureFormat
	DepthWriteEnabled bool
	DepthCompare      wgpu.CompareFunction
}

type PrimitiveConfig struct {
	Topology  wgpu.PrimitiveTopology
	CullMode  wgpu.CullMode
	FrontFace wgpu.FrontFace
}

// RenderPipelineConfig is a plain value describing a render pipeline. The
// With* helpers return modified copies, so a config can be reused as a
// template without affecting descriptors built from it.
type RenderPipelineConfig struct {
	Label          string
	Layout         *wgpu.PipelineLayout
	VertexModule   *wgpu.ShaderModule
	VertexEntry    string
	FragmentModule *wgpu.ShaderModule
	FragmentEntry  string
	VertexBuffers  []wgpu.VertexBufferLayout
	TargetFormats  []wgpu.TextureFormat
	DepthStencil   *DepthStencilConfig
	Primitive      PrimitiveConfig
	SampleCount    uint32
}

func DefaultRenderPipelineConfig() RenderPipelineConfig {
	return RenderPipelineConfig{
		VertexEntry:   DefaultVertexEntry,
		FragmentEntry: DefaultFragmentEntry,
		Primitive: PrimitiveConfig{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			CullMode:  wgpu.CullModeNone,
			FrontFace: wgpu.FrontFaceCW,
		},
		SampleCount: DefaultSampleCount,
	}
}

func (c RenderPipelineConfig) WithLabel(label string) RenderPipelineConfig {
	c.Label = label
	return c
}

func (c RenderPipelineConfig) WithLayout(layout *wgpu.PipelineLayout) RenderPipelineConfig {
	c.Layout = layout
	return c
}

// WithShaderModule uses one module for both stages. Empty entry names keep
// the defaults.
func (c RenderPipelineConfig) WithShaderModule(module *wgpu.ShaderModule, vertexEntry, fragmentEntry string) RenderPipelineConfig {
	return c.WithVertexShader(module, vertexEntry).WithFragmentShader(module, fragmentEntry)
}

func (c RenderPipelineConfig) WithVertexShader(module *wgpu.ShaderModule, entry string) RenderPipelineConfig {
	if entry == "" {
		entry = DefaultVertexEntry
	}
	c.VertexModule = module
	c.VertexEntry = entry
	return c
}

func (c RenderPipelineConfig) WithFragmentShader(module *wgpu.ShaderModule, entry string) RenderPipelineConfig {
	if entry == "" {
		entry = DefaultFragmentEntry
	}
	c.FragmentModule = module
	c.FragmentEntry = entry
	return c
}

func (c RenderPipelineConfig) WithVertexBuffers(layouts ...wgpu.VertexBufferLayout) RenderPipelineConfig {
	c.VertexBuffers = append([]wgpu.VertexBufferLayout(nil), layouts...)
	return c
}

func (c RenderPipelineConfig) WithTargetFormats(formats ...wgpu.TextureFormat) RenderPipelineConfig {
	c.TargetFormats = append([]wgpu.TextureFormat(nil), formats...)
	return c
}

// WithDepthStencil enables a depth attachment with write enabled and a
// less-than compare.
func (c RenderPipelineConfig) WithDepthStencil(format wgpu.TextureFormat) RenderPipelineConfig {
	c.DepthStencil = &DepthStencilConfig{
		Format:            format,
		DepthWriteEnabled: true,
		DepthCompare:      wgpu.CompareFunctionLess,
	}
	return c
}

func (c RenderPipelineConfig) WithoutDepthStencil() RenderPipelineConfig {
	c.DepthStencil = nil
	return c
}

func (c RenderPipelineConfig) WithPrimitive(p PrimitiveConfig) RenderPipelineConfig {
	c.Primitive = p
	return c
}

func (c RenderPipelineConfig) WithMultisample(count uint32) RenderPipelineConfig {
	c.SampleCount = count
	return c
}

// RenderPipelineDescriptor is the validated, immutable result of
// BuildRenderPipeline. It owns private copies of every slice in the config.
type RenderPipelineDescriptor struct {
	cfg        RenderPipelineConfig
	advisories []string
}

// BuildRenderPipeline validates c and freezes it. Checks run in order
// layout, vertex module, fragment module, target formats; the first failure
// is returned as a *PipelineConfigError.
func BuildRenderPipeline(c RenderPipelineConfig) (*RenderPipelineDescriptor, error) {
	switch {
	case c.Layout == nil:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "layout"}
	case c.VertexModule == nil:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "vertex module"}
	case c.FragmentModule == nil:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "fragment module"}
	case len(c.TargetFormats) == 0:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "target formats"}
	}

	frozen := c
	frozen.VertexBuffers = cloneVertexBuffers(c.VertexBuffers)
	frozen.TargetFormats = append([]wgpu.TextureFormat(nil), c.TargetFormats...)
	if c.DepthStencil != nil {
		ds := *c.DepthStencil
		frozen.DepthStencil = &ds
	}
	if frozen.SampleCount == 0 {
		frozen.SampleCount = 1
	}

	d := &RenderPipelineDescriptor{cfg: frozen}
	if len(frozen.VertexBuffers) == 0 {
		d.advisories = append(d.advisories, "no vertex buffers specified; valid only if vertices are generated in the shader")
	}
	return d, nil
}

func cloneVertexBuffers(in []wgpu.VertexBufferLayout) []wgpu.VertexBufferLayout {
	if len(in) == 0 {
		return nil
	}
	out := make([]wgpu.VertexBufferLayout, len(in))
	for i, l := range in {
		out[i] = l
		out[i].Attributes = append([]wgpu.VertexAttribute(nil), l.Attributes...)
	}
	return out
}

// Config returns a copy of the frozen configuration.
func (d *RenderPipelineDescriptor) Config() RenderPipelineConfig {
	c := d.cfg
	c.VertexBuffers = cloneVertexBuffers(d.cfg.VertexBuffers)
	c.TargetFormats = append([]wgpu.TextureFormat(nil), d.cfg.TargetFormats...)
	if d.cfg.DepthStencil != nil {
		ds := *d.cfg.DepthStencil
		c.DepthStencil = &ds
	}
	return c
}

// Advisories lists non-fatal notes produced during validation.
func (d *RenderPipelineDescriptor) Advisories() []string {
	return append([]string(nil), d.advisories...)
}

func (d *RenderPipelineDescriptor) Label() string       { return d.cfg.Label }
func (d *RenderPipelineDescriptor) SampleCount() uint32 { return d.cfg.SampleCount }

// WGPU expands the descriptor into a fresh wgpu descriptor.
func (d *RenderPipelineDescriptor) WGPU() *wgpu.RenderPipelineDescriptor {
	c := d.Config()
	targets := make([]wgpu.ColorTargetState, len(c.TargetFormats))
	for i, f := range c.TargetFormats {
		targets[i] = wgpu.ColorTargetState{
			Format:    f,
			WriteMask: wgpu.ColorWriteMaskAll,
		}
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label:  c.Label,
		Layout: c.Layout,
		Vertex: wgpu.VertexState{
			Module:     c.VertexModule,
			EntryPoint: c.VertexEntry,
			Buffers:    c.VertexBuffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     c.FragmentModule,
			EntryPoint: c.FragmentEntry,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  c.Primitive.Topology,
			FrontFace: c.Primitive.FrontFace,
			CullMode:  c.Primitive.CullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: c.SampleCount,
			Mask:  0xFFFFFFFF,
		},
	}
	if c.DepthStencil != nil {
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            c.DepthStencil.Format,
			DepthWriteEnabled: c.DepthStencil.DepthWriteEnabled,
			DepthCompare:      c.DepthStencil.DepthCompare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}
	return desc
}

// ComputePipelineConfig describes a compute pipeline.
type ComputePipelineConfig struct {
	Label  string
	Layout *wgpu.PipelineLayout
	Module *wgpu.ShaderModule
	Entry  string
}

type ComputePipelineDescriptor struct {
	cfg ComputePipelineConfig
}

func BuildComputePipeline(c ComputePipelineConfig) (*ComputePipelineDescriptor, error) {
	switch {
	case c.Layout == nil:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "layout"}
	case c.Module == nil:
		return nil, &PipelineConfigError{Pipeline: c.Label, Field: "compute module"}
	}
	if c.Entry == "" {
		c.Entry = DefaultComputeEntry
	}
	return &ComputePipelineDescriptor{cfg: c}, nil
}

func (d *ComputePipelineDescriptor) Config() ComputePipelineConfig { return d.cfg }

func (d *ComputePipelineDescriptor) WGPU() *wgpu.ComputePipelineDescriptor {
	return &wgpu.ComputePipelineDescriptor{
		Label:  d.cfg.Label,
		Layout: d.cfg.Layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     d.cfg.Module,
			EntryPoint: d.cfg.Entry,
		},
	}
}
