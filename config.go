package volumert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/gpu"
	"github.com/gekko3d/volumert/rt/source"
	"github.com/gekko3d/volumert/rt/volume"
)

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

// VolumeConfig selects what the viewer loads at startup. Synthetic wins over
// Locator when both are set.
type VolumeConfig struct {
	// Locator is a local path or an http(s) URL.
	Locator string `toml:"locator"`
	// Format is "nifti", "raw" or empty to infer from the locator.
	Format       string `toml:"format"`
	RawDims      [3]int `toml:"raw_dims"`
	RawType      string `toml:"raw_type"`
	RawBigEndian bool   `toml:"raw_big_endian"`
	RawOffset    int    `toml:"raw_offset"`
	// RawSpacing is the voxel size in mm; zero components read as 1.
	RawSpacing [3]float32 `toml:"raw_spacing"`

	Synthetic     string `toml:"synthetic"`
	SyntheticDims [3]int `toml:"synthetic_dims"`
	SyntheticType string `toml:"synthetic_type"`
}

type CameraConfig struct {
	FovDeg float32    `toml:"fov_deg"`
	Eye    [3]float32 `toml:"eye"`
	Target [3]float32 `toml:"target"`
	Near   float32    `toml:"near"`
	Far    float32    `toml:"far"`
}

type TransferClass struct {
	Name  string  `toml:"name"`
	Alpha float32 `toml:"alpha"`
}

type Config struct {
	Window WindowConfig `toml:"window"`
	Debug  bool         `toml:"debug"`
	// Verify cross-checks the GPU max gradient against the CPU reference
	// after every load.
	Verify      bool    `toml:"verify"`
	SampleCount uint32  `toml:"sample_count"`
	PresentMode string  `toml:"present_mode"`
	FPS         int     `toml:"fps"`
	LoadTimeout float64 `toml:"load_timeout_seconds"`

	Volume     VolumeConfig    `toml:"volume"`
	Camera     CameraConfig    `toml:"camera"`
	Transfer   []TransferClass `toml:"transfer"`
	Rotation   [3]float32      `toml:"rotation"`
	SlicePlane float32         `toml:"slice_plane"`
}

func DefaultConfig() Config {
	cam := core.DefaultCamera()
	tf := core.DefaultTransferFunction()
	classes := make([]TransferClass, len(tf))
	for i, w := range tf {
		classes[i] = TransferClass{Name: w.Name, Alpha: w.Alpha}
	}
	return Config{
		Window:      WindowConfig{Width: 1280, Height: 720, Title: "volviewer"},
		SampleCount: gpu.DefaultSampleCount,
		PresentMode: "fifo",
		FPS:         60,
		LoadTimeout: 60,
		Volume: VolumeConfig{
			SyntheticDims: [3]int{128, 128, 128},
			SyntheticType: "u16",
		},
		Camera: CameraConfig{
			FovDeg: cam.FovDeg,
			Eye:    cam.Eye,
			Target: cam.Target,
			Near:   cam.Near,
			Far:    cam.Far,
		},
		Transfer:   classes,
		SlicePlane: 1,
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := DecodeConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg)
	if err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("config line %d column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func WriteConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).SetIndentTables(true).Encode(cfg)
}

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height))
	}
	switch c.SampleCount {
	case 0, 1, 4:
	default:
		errs = append(errs, fmt.Errorf("sample_count %d: must be 1 or 4", c.SampleCount))
	}
	if _, err := c.presentMode(); err != nil {
		errs = append(errs, err)
	}
	if c.FPS < 0 {
		errs = append(errs, fmt.Errorf("fps %d", c.FPS))
	}
	if c.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("load_timeout_seconds %v", c.LoadTimeout))
	}
	if c.SlicePlane < 0 || c.SlicePlane > 1 {
		errs = append(errs, fmt.Errorf("slice_plane %v outside [0, 1]", c.SlicePlane))
	}
	if len(c.Transfer) > core.MaxTransferWeights {
		errs = append(errs, fmt.Errorf("%d transfer classes, at most %d", len(c.Transfer), core.MaxTransferWeights))
	}
	for _, tc := range c.Transfer {
		if tc.Alpha < 0 || tc.Alpha > 1 {
			errs = append(errs, fmt.Errorf("transfer %q alpha %v outside [0, 1]", tc.Name, tc.Alpha))
		}
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		errs = append(errs, fmt.Errorf("camera near/far %v/%v", c.Camera.Near, c.Camera.Far))
	}
	if c.Camera.FovDeg <= 0 || c.Camera.FovDeg >= 180 {
		errs = append(errs, fmt.Errorf("camera fov_deg %v outside (0, 180)", c.Camera.FovDeg))
	}
	if c.Volume.Locator != "" || c.Volume.Synthetic != "" {
		if _, err := c.Source(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) presentMode() (wgpu.PresentMode, error) {
	switch strings.ToLower(c.PresentMode) {
	case "", "fifo":
		return wgpu.PresentModeFifo, nil
	case "mailbox":
		return wgpu.PresentModeMailbox, nil
	case "immediate":
		return wgpu.PresentModeImmediate, nil
	}
	return 0, fmt.Errorf("present_mode %q", c.PresentMode)
}

// SessionOptions maps the config onto device session options.
func (c Config) SessionOptions() gpu.Options {
	opts := gpu.DefaultOptions()
	if mode, err := c.presentMode(); err == nil {
		opts.PresentMode = mode
	}
	return opts
}

// FrameParams builds the initial control-surface state.
func (c Config) FrameParams() core.FrameParams {
	p := core.DefaultFrameParams()
	p.Camera.FovDeg = c.Camera.FovDeg
	p.Camera.Eye = mgl32.Vec3(c.Camera.Eye)
	p.Camera.Target = mgl32.Vec3(c.Camera.Target)
	p.Camera.Near = c.Camera.Near
	p.Camera.Far = c.Camera.Far
	p.Camera.Aspect = float32(c.Window.Width) / float32(c.Window.Height)
	if c.Transfer != nil {
		p.Transfer = make(core.TransferFunction, len(c.Transfer))
		for i, tc := range c.Transfer {
			p.Transfer[i] = core.AlphaWeight{Name: tc.Name, Alpha: tc.Alpha}
		}
	}
	p.VolumeRotation = c.Rotation
	p.SlicePlane = c.SlicePlane
	return p
}

// Source resolves the configured startup volume.
func (c Config) Source() (source.Source, error) {
	v := c.Volume
	if v.Synthetic != "" {
		t, err := volume.ParseElementType(v.SyntheticType)
		if err != nil {
			return nil, fmt.Errorf("synthetic_type: %w", err)
		}
		switch v.Synthetic {
		case source.KindRamp, source.KindSphere, source.KindCube:
		default:
			return nil, fmt.Errorf("synthetic %q: want ramp, sphere or cube", v.Synthetic)
		}
		if err := volume.CheckDims(v.SyntheticDims); err != nil {
			return nil, fmt.Errorf("synthetic_dims: %w", err)
		}
		return source.Synthetic{Kind: v.Synthetic, Dims: v.SyntheticDims, Type: t}, nil
	}
	if v.Locator == "" {
		return nil, errors.New("no volume configured")
	}

	var dec source.Decoder
	switch strings.ToLower(v.Format) {
	case "":
	case "nifti":
		dec = source.NIfTI{}
	case "raw":
		t, err := volume.ParseElementType(v.RawType)
		if err != nil {
			return nil, fmt.Errorf("raw_type: %w", err)
		}
		if err := volume.CheckDims(v.RawDims); err != nil {
			return nil, fmt.Errorf("raw_dims: %w", err)
		}
		dec = source.Raw{Dims: v.RawDims, Type: t, BigEndian: v.RawBigEndian, Offset: v.RawOffset, Spacing: v.RawSpacing}
	default:
		return nil, fmt.Errorf("volume format %q", v.Format)
	}
	if dec == nil {
		if _, err := source.DecoderFor(v.Locator); err != nil {
			return nil, err
		}
	}
	return source.Open(v.Locator, dec), nil
}

func (c Config) loadTimeout() time.Duration {
	return time.Duration(c.LoadTimeout * float64(time.Second))
}
