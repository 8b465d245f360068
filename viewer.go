package volumert

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/gekko3d/volumert/rt/app"
	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/gpu"
	"github.com/gekko3d/volumert/rt/source"
	"github.com/gekko3d/volumert/rt/volume"
)

// MaxGradientTolerance is the relative difference allowed between the GPU
// max gradient and the CPU reference. The kernel reduces full-precision
// gradients; only the stored texture is half float.
const MaxGradientTolerance = 1e-5

// Viewer wires a device session, the preprocess and raymarch passes and the
// frame orchestrator into one object the host drives.
type Viewer struct {
	Params *core.ParamsStore

	cfg      Config
	log      core.Logger
	session  *gpu.Session
	pass     *gpu.PreprocessPass
	renderer *gpu.FrameRenderer
	orch     *app.Orchestrator
}

func NewViewer(cfg Config, surface gpu.SurfaceSource, log core.Logger) (*Viewer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = core.OrNop(log)
	log.SetDebug(cfg.Debug || log.DebugEnabled())

	gpuLog := core.Named(log, "gpu")
	session, err := gpu.Initialize(surface, cfg.SessionOptions(), gpuLog)
	if err != nil {
		return nil, err
	}
	v := &Viewer{
		Params:  core.NewParamsStore(cfg.FrameParams()),
		cfg:     cfg,
		log:     log,
		session: session,
	}
	v.Params.SetAspect(session.Aspect())

	v.renderer, err = gpu.NewFrameRenderer(session, cfg.SampleCount, gpuLog)
	if err != nil {
		v.Close()
		return nil, err
	}
	v.pass = gpu.NewPreprocessPass(session, gpuLog)
	var proc app.VolumeProcessor = gpu.NewVolumeLoader(v.pass, v.renderer, gpuLog)
	if cfg.Verify {
		proc = verifyingProcessor{next: proc, log: core.Named(log, "verify")}
	}
	v.orch = app.NewOrchestrator(v.Params, v.renderer, proc, core.Named(log, "frame"))
	return v, nil
}

func (v *Viewer) Orchestrator() *app.Orchestrator { return v.orch }

// Load makes src the drawn volume. It blocks until the volume is bound, the
// configured timeout expires or ctx is done. With Verify set a volume whose
// GPU max gradient disagrees with the CPU reference is not bound.
func (v *Viewer) Load(ctx context.Context, src source.Source) (uuid.UUID, error) {
	if d := v.cfg.loadTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return v.orch.LoadVolume(ctx, src)
}

// ResetView restores the configured camera, rotation and slice plane in one
// update. The current aspect ratio is kept.
func (v *Viewer) ResetView() {
	initial := v.cfg.FrameParams()
	v.Params.Update(func(p *core.FrameParams) {
		aspect := p.Camera.Aspect
		p.Camera = initial.Camera
		p.Camera.Aspect = aspect
		p.VolumeRotation = initial.VolumeRotation
		p.SlicePlane = initial.SlicePlane
	})
}

// verifyingProcessor rejects bindings whose max gradient disagrees with the
// CPU reference. It runs inside the load, after the in-progress check.
type verifyingProcessor struct {
	next app.VolumeProcessor
	log  core.Logger
}

func (p verifyingProcessor) Process(ctx context.Context, id uuid.UUID, vol *volume.VoxelVolume) (*gpu.VolumeBinding, error) {
	b, err := p.next.Process(ctx, id, vol)
	if err != nil {
		return nil, err
	}
	if err := VerifyMaxGradient(vol, b.MaxGradient, p.log); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// VerifyMaxGradient recomputes the max gradient magnitude on the CPU and
// compares it with the value read back from the GPU.
func VerifyMaxGradient(vol *volume.VoxelVolume, gpuMax float32, log core.Logger) error {
	log = core.OrNop(log)
	field, err := volume.NewGradientField(vol)
	if err != nil {
		return err
	}
	cpuMax := field.MaxMagnitude(0)
	diff := math.Abs(float64(gpuMax - cpuMax))
	scale := math.Max(math.Abs(float64(cpuMax)), 1e-6)
	if diff/scale > MaxGradientTolerance {
		return fmt.Errorf("max gradient mismatch: gpu %.6f, cpu %.6f", gpuMax, cpuMax)
	}
	log.Infof("verify: max gradient gpu %.6f cpu %.6f", gpuMax, cpuMax)
	return nil
}

func (v *Viewer) RequestResize(width, height int) { v.orch.RequestResize(width, height) }

// Run drives frames from ticks until ctx is done or ticks closes. When ticks
// is nil an interval source at the configured FPS is used.
func (v *Viewer) Run(ctx context.Context, ticks app.TickSource) error {
	if ticks == nil {
		it := app.NewIntervalTicks(v.cfg.FPS)
		defer it.Stop()
		ticks = it
	}
	return v.orch.Run(ctx, ticks)
}

// Close releases every GPU resource. Run must have returned.
func (v *Viewer) Close() {
	if v.orch != nil {
		v.orch.Close()
		v.orch = nil
	}
	if v.pass != nil {
		v.pass.Release()
		v.pass = nil
	}
	if v.renderer != nil {
		v.renderer.Release()
		v.renderer = nil
	}
	if v.session != nil {
		v.session.Release()
		v.session = nil
	}
}
