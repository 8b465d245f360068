package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/volumert"
	"github.com/gekko3d/volumert/rt/app"
	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/source"
)

const (
	rotateStep = 5
	sliceStep  = 0.02
)

func init() {
	runtime.LockOSThread()
}

type windowSurface struct {
	window *glfw.Window
}

func (s windowSurface) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(s.window)
}

func (s windowSurface) FramebufferSize() (int, int) {
	return s.window.GetFramebufferSize()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "volviewer:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging and per-load timings")
	verify := flag.Bool("verify", false, "Cross-check the GPU max gradient against the CPU reference")
	locator := flag.String("volume", "", "Volume path or http(s) URL (.nii, .nii.gz)")
	synthetic := flag.String("synthetic", "", "Synthetic phantom instead of a file: ramp, sphere or cube")
	samples := flag.Uint("samples", 0, "MSAA sample count (1 or 4)")
	printConfig := flag.Bool("print-config", false, "Print the effective config as TOML and exit")
	flag.Parse()

	cfg := volumert.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = volumert.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			cfg.Debug = *debug
		case "verify":
			cfg.Verify = *verify
		case "volume":
			cfg.Volume.Locator = *locator
			cfg.Volume.Synthetic = ""
		case "synthetic":
			cfg.Volume.Synthetic = *synthetic
		case "samples":
			cfg.SampleCount = uint32(*samples)
		}
	})
	if cfg.Volume.Locator == "" && cfg.Volume.Synthetic == "" {
		cfg.Volume.Synthetic = source.KindSphere
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *printConfig {
		return volumert.WriteConfig(os.Stdout, cfg)
	}
	src, err := cfg.Source()
	if err != nil {
		return err
	}

	log := core.NewDefaultLogger("volviewer", cfg.Debug)

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	viewer, err := volumert.NewViewer(cfg, windowSurface{window: window}, log)
	if err != nil {
		return err
	}
	defer viewer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loads sync.WaitGroup
	load := func() {
		loads.Add(1)
		go func() {
			defer loads.Done()
			id, err := viewer.Load(ctx, src)
			switch {
			case errors.Is(err, core.ErrLoadInProgress):
				log.Warnf("reload ignored: a load is already running")
			case errors.Is(err, context.Canceled):
			case err != nil:
				log.Errorf("load %s: %v", src, err)
			default:
				log.Infof("volume %s ready (%s)", src, id)
			}
		}()
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		viewer.RequestResize(width, height)
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyLeft:
			viewer.Params.RotateVolume([3]float32{0, -rotateStep, 0})
		case glfw.KeyRight:
			viewer.Params.RotateVolume([3]float32{0, rotateStep, 0})
		case glfw.KeyUp:
			viewer.Params.RotateVolume([3]float32{-rotateStep, 0, 0})
		case glfw.KeyDown:
			viewer.Params.RotateVolume([3]float32{rotateStep, 0, 0})
		case glfw.KeyLeftBracket:
			moveSlice(viewer.Params, -sliceStep)
		case glfw.KeyRightBracket:
			moveSlice(viewer.Params, sliceStep)
		case glfw.KeyHome:
			viewer.ResetView()
		case glfw.KeyR:
			if action == glfw.Press {
				load()
			}
		case glfw.KeyP:
			log.Infof("frames=%d %s", viewer.Orchestrator().Frames(), viewer.Orchestrator().FrameProfiler.StatsString())
		}
	})

	ticks := make(app.ChanTicks, 1)
	done := make(chan error, 1)
	go func() { done <- viewer.Run(ctx, ticks) }()
	load()

	fps := cfg.FPS
	if fps <= 0 {
		fps = 60
	}
	interval := (time.Second / time.Duration(fps)).Seconds()
	for !window.ShouldClose() {
		glfw.WaitEventsTimeout(interval)
		ticks.Offer(time.Now())
	}

	cancel()
	loads.Wait()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func moveSlice(params *core.ParamsStore, delta float32) {
	params.Update(func(p *core.FrameParams) {
		p.SlicePlane = mgl32.Clamp(p.SlicePlane+delta, 0, 1)
	})
}
