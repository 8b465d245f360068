package gpu

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/volumert/rt/core"
)

func completeConfig() RenderPipelineConfig {
	module := &wgpu.ShaderModule{}
	return DefaultRenderPipelineConfig().
		WithLabel("test").
		WithLayout(&wgpu.PipelineLayout{}).
		WithShaderModule(module, "", "").
		WithTargetFormats(wgpu.TextureFormatBGRA8Unorm)
}

func TestDefaultRenderPipelineConfig(t *testing.T) {
	c := DefaultRenderPipelineConfig()
	assert.Equal(t, DefaultVertexEntry, c.VertexEntry)
	assert.Equal(t, DefaultFragmentEntry, c.FragmentEntry)
	assert.Equal(t, uint32(DefaultSampleCount), c.SampleCount)
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleList, c.Primitive.Topology)
	assert.Nil(t, c.DepthStencil)
}

func TestBuildRenderPipelineValidationOrder(t *testing.T) {
	module := &wgpu.ShaderModule{}
	layout := &wgpu.PipelineLayout{}

	cases := []struct {
		name  string
		cfg   RenderPipelineConfig
		field string
	}{
		{"nothing set", DefaultRenderPipelineConfig(), "layout"},
		{"missing layout", DefaultRenderPipelineConfig().WithShaderModule(module, "", "").WithTargetFormats(wgpu.TextureFormatBGRA8Unorm), "layout"},
		{"missing vertex", DefaultRenderPipelineConfig().WithLayout(layout), "vertex module"},
		{"missing fragment", DefaultRenderPipelineConfig().WithLayout(layout).WithVertexShader(module, ""), "fragment module"},
		{"missing targets", DefaultRenderPipelineConfig().WithLayout(layout).WithShaderModule(module, "", ""), "target formats"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := BuildRenderPipeline(tc.cfg)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.True(t, errors.Is(err, core.ErrPipelineConfiguration))

			var pce *PipelineConfigError
			require.True(t, errors.As(err, &pce))
			assert.Equal(t, tc.field, pce.Field)
		})
	}
}

func TestBuildRenderPipelineWithoutVertexBuffersAdvises(t *testing.T) {
	d, err := BuildRenderPipeline(completeConfig())
	require.NoError(t, err)
	require.Len(t, d.Advisories(), 1)
	assert.Contains(t, d.Advisories()[0], "vertex buffers")

	withBuffers, err := BuildRenderPipeline(completeConfig().WithVertexBuffers(QuadVertexLayout()))
	require.NoError(t, err)
	assert.Empty(t, withBuffers.Advisories())
}

func TestRenderPipelineConfigIsImmutableAfterBuild(t *testing.T) {
	base := completeConfig().WithVertexBuffers(QuadVertexLayout())
	d, err := BuildRenderPipeline(base)
	require.NoError(t, err)

	// Mutating the source config after build must not leak into the descriptor.
	base.TargetFormats[0] = wgpu.TextureFormatRGBA8Unorm
	base.VertexBuffers[0].Attributes[0].ShaderLocation = 7
	base.Label = "changed"

	got := d.Config()
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, got.TargetFormats[0])
	assert.Equal(t, uint32(0), got.VertexBuffers[0].Attributes[0].ShaderLocation)
	assert.Equal(t, "test", d.Label())

	// Nor does mutating a returned copy.
	got.TargetFormats[0] = wgpu.TextureFormatR8Unorm
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, d.Config().TargetFormats[0])
}

func TestWithHelpersReturnCopies(t *testing.T) {
	base := completeConfig()
	withDepth := base.WithDepthStencil(wgpu.TextureFormatDepth24Plus)
	assert.Nil(t, base.DepthStencil)
	require.NotNil(t, withDepth.DepthStencil)
	assert.True(t, withDepth.DepthStencil.DepthWriteEnabled)
	assert.Equal(t, wgpu.CompareFunctionLess, withDepth.DepthStencil.DepthCompare)
	assert.Nil(t, withDepth.WithoutDepthStencil().DepthStencil)

	single := base.WithMultisample(1)
	assert.Equal(t, uint32(DefaultSampleCount), base.SampleCount)
	assert.Equal(t, uint32(1), single.SampleCount)
}

func TestWGPUDescriptorExpansion(t *testing.T) {
	d, err := BuildRenderPipeline(completeConfig().
		WithVertexBuffers(QuadVertexLayout()).
		WithDepthStencil(wgpu.TextureFormatDepth32Float))
	require.NoError(t, err)

	desc := d.WGPU()
	assert.Equal(t, "test", desc.Label)
	assert.Equal(t, DefaultVertexEntry, desc.Vertex.EntryPoint)
	require.NotNil(t, desc.Fragment)
	assert.Equal(t, DefaultFragmentEntry, desc.Fragment.EntryPoint)
	require.Len(t, desc.Fragment.Targets, 1)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, desc.Fragment.Targets[0].Format)
	assert.Equal(t, uint32(DefaultSampleCount), desc.Multisample.Count)
	require.NotNil(t, desc.DepthStencil)
	assert.Equal(t, wgpu.TextureFormatDepth32Float, desc.DepthStencil.Format)
	require.Len(t, desc.Vertex.Buffers, 1)
}

func TestZeroSampleCountNormalizesToOne(t *testing.T) {
	d, err := BuildRenderPipeline(completeConfig().WithMultisample(0))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d.SampleCount())
}

func TestBuildComputePipeline(t *testing.T) {
	_, err := BuildComputePipeline(ComputePipelineConfig{Label: "c"})
	var pce *PipelineConfigError
	require.True(t, errors.As(err, &pce))
	assert.Equal(t, "layout", pce.Field)
	assert.Contains(t, err.Error(), `"c"`)

	_, err = BuildComputePipeline(ComputePipelineConfig{Layout: &wgpu.PipelineLayout{}})
	require.True(t, errors.As(err, &pce))
	assert.Equal(t, "compute module", pce.Field)

	d, err := BuildComputePipeline(ComputePipelineConfig{Layout: &wgpu.PipelineLayout{}, Module: &wgpu.ShaderModule{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultComputeEntry, d.WGPU().Compute.EntryPoint)
}
