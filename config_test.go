package volumert

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/source"
	"github.com/gekko3d/volumert/rt/volume"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	p := cfg.FrameParams()
	assert.Equal(t, core.DefaultCamera().Eye, p.Camera.Eye)
	assert.InDelta(t, 1280.0/720.0, p.Camera.Aspect, 1e-6)
	assert.Equal(t, core.DefaultTransferFunction(), p.Transfer)
	assert.Equal(t, float32(1), p.SlicePlane)
}

const sampleTOML = `
debug = true
sample_count = 1
present_mode = "mailbox"
slice_plane = 0.5
rotation = [90.0, 0.0, 0.0]

[window]
width = 800
height = 600
title = "ct"

[volume]
locator = "scans/head.raw"
format = "raw"
raw_dims = [256, 256, 113]
raw_type = "u16"
raw_big_endian = true
raw_spacing = [0.5, 0.5, 1.25]

[[transfer]]
name = "air"
alpha = 0.0

[[transfer]]
name = "bone"
alpha = 0.8
`

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(sampleTOML))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, uint32(1), cfg.SampleCount)
	assert.Equal(t, WindowConfig{Width: 800, Height: 600, Title: "ct"}, cfg.Window)
	assert.Equal(t, [3]int{256, 256, 113}, cfg.Volume.RawDims)
	assert.Equal(t, float32(0.5), cfg.SlicePlane)
	// Unset keys keep their defaults.
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, DefaultConfig().Camera, cfg.Camera)

	assert.Equal(t, wgpu.PresentModeMailbox, cfg.SessionOptions().PresentMode)

	p := cfg.FrameParams()
	assert.Equal(t, [3]float32{90, 0, 0}, p.VolumeRotation)
	alpha, ok := p.Transfer.Alpha("bone")
	assert.True(t, ok)
	assert.Equal(t, float32(0.8), alpha)
	assert.Len(t, p.Transfer, 2)

	src, err := cfg.Source()
	require.NoError(t, err)
	file, ok := src.(source.File)
	require.True(t, ok)
	assert.Equal(t, source.Raw{Dims: [3]int{256, 256, 113}, Type: volume.Uint16, BigEndian: true, Spacing: [3]float32{0.5, 0.5, 1.25}}, file.Decoder)
}

func TestDecodeConfigErrors(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("windw_width = 3\n"))
	assert.Error(t, err)

	_, err = DecodeConfig(strings.NewReader("[window]\nwidth = \"wide\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = DecodeConfig(strings.NewReader("sample_count = 3\nslice_plane = 2.0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_count 3")
	assert.Contains(t, err.Error(), "slice_plane 2")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"window", func(c *Config) { c.Window.Height = 0 }, "window size"},
		{"present mode", func(c *Config) { c.PresentMode = "vsync" }, "present_mode"},
		{"fps", func(c *Config) { c.FPS = -1 }, "fps"},
		{"too many classes", func(c *Config) { c.Transfer = make([]TransferClass, 9) }, "transfer classes"},
		{"alpha", func(c *Config) { c.Transfer[0].Alpha = 2 }, "alpha"},
		{"near far", func(c *Config) { c.Camera.Far = c.Camera.Near }, "near/far"},
		{"zero fov", func(c *Config) { c.Camera.FovDeg = 0 }, "fov_deg"},
		{"straight fov", func(c *Config) { c.Camera.FovDeg = 180 }, "fov_deg"},
		{"synthetic dims", func(c *Config) { c.Volume.Synthetic = source.KindRamp; c.Volume.SyntheticDims = [3]int{64, 0, 64} }, "synthetic_dims"},
		{"huge synthetic dims", func(c *Config) { c.Volume.Synthetic = source.KindCube; c.Volume.SyntheticDims = [3]int{4096, 8, 8} }, "synthetic_dims"},
		{"raw dims", func(c *Config) {
			c.Volume.Locator, c.Volume.Format, c.Volume.RawType = "a.raw", "raw", "u8"
		}, "raw_dims"},
		{"synthetic kind", func(c *Config) { c.Volume.Synthetic = "torus" }, "torus"},
		{"raw type", func(c *Config) { c.Volume.Locator = "a.raw"; c.Volume.Format = "raw" }, "raw_type"},
		{"unknown extension", func(c *Config) { c.Volume.Locator = "a.dcm" }, "no decoder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigSource(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Source()
	assert.Error(t, err)

	cfg.Volume.Synthetic = source.KindSphere
	src, err := cfg.Source()
	require.NoError(t, err)
	assert.Equal(t, source.Synthetic{Kind: source.KindSphere, Dims: [3]int{128, 128, 128}, Type: volume.Uint16}, src)

	cfg = DefaultConfig()
	cfg.Volume.Locator = "https://example.org/brain.nii.gz"
	src, err = cfg.Source()
	require.NoError(t, err)
	assert.IsType(t, source.HTTP{}, src)
}

func TestWriteAndLoadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Volume.Synthetic = source.KindCube
	cfg.Rotation = [3]float32{0, 45, 0}

	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, cfg))
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestVerifyMaxGradient(t *testing.T) {
	vol, err := volume.Ramp([3]int{5, 3, 2}, 0, volume.Float32)
	require.NoError(t, err)

	assert.NoError(t, VerifyMaxGradient(vol, 0.25, nil))
	assert.NoError(t, VerifyMaxGradient(vol, 0.250001, nil))
	assert.Error(t, VerifyMaxGradient(vol, 0.2501, nil))
	assert.Error(t, VerifyMaxGradient(vol, 0.3, nil))
	assert.Error(t, VerifyMaxGradient(nil, 0.25, nil))
}

func TestNewViewerWithoutSurface(t *testing.T) {
	_, err := NewViewer(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, core.ErrPlatformUnsupported)

	bad := DefaultConfig()
	bad.SampleCount = 2
	_, err = NewViewer(bad, nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrPlatformUnsupported)
}
