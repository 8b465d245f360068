package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/gpu"
	"github.com/gekko3d/volumert/rt/source"
	"github.com/gekko3d/volumert/rt/volume"
)

type State int32

const (
	StateIdle State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// FrameEncoder is the render side of a frame. It is only ever called from
// the goroutine running Tick.
type FrameEncoder interface {
	WriteUniforms(cam gpu.CameraUniform, tf gpu.TransferUniform) error
	Draw(b *gpu.VolumeBinding) error
	Resize(width, height int)
}

// VolumeProcessor turns fetched samples into a drawable binding.
type VolumeProcessor interface {
	Process(ctx context.Context, id uuid.UUID, vol *volume.VoxelVolume) (*gpu.VolumeBinding, error)
}

// Orchestrator drives one draw per tick against the most recently completed
// volume load. Loads run on the caller's goroutine and publish their result
// with a single atomic swap, so a tick sees either the previous binding or
// the new one, never a mix.
type Orchestrator struct {
	params    *core.ParamsStore
	encoder   FrameEncoder
	processor VolumeProcessor
	log       core.Logger

	current atomic.Pointer[gpu.VolumeBinding]
	loading atomic.Bool
	frames  atomic.Uint64
	resize  atomic.Pointer[[2]int]

	// Bindings replaced by a load are released by the next tick, after the
	// tick that might still be drawing them has returned.
	retiredMu sync.Mutex
	retired   []*gpu.VolumeBinding

	LoadProfiler  *Profiler
	FrameProfiler *Profiler
}

func NewOrchestrator(params *core.ParamsStore, encoder FrameEncoder, processor VolumeProcessor, log core.Logger) *Orchestrator {
	return &Orchestrator{
		params:        params,
		encoder:       encoder,
		processor:     processor,
		log:           core.OrNop(log),
		LoadProfiler:  NewProfiler(),
		FrameProfiler: NewProfiler(),
	}
}

func (o *Orchestrator) State() State {
	if o.current.Load() == nil {
		return StateIdle
	}
	return StateReady
}

// Current returns the binding the next tick will draw, or nil when idle.
func (o *Orchestrator) Current() *gpu.VolumeBinding { return o.current.Load() }

func (o *Orchestrator) Frames() uint64 { return o.frames.Load() }

func (o *Orchestrator) Loading() bool { return o.loading.Load() }

// LoadVolume fetches, preprocesses and binds a volume, then makes it current.
// Only one load may be outstanding; a concurrent call fails with
// core.ErrLoadInProgress. On any failure the previous binding stays current.
func (o *Orchestrator) LoadVolume(ctx context.Context, src source.Source) (uuid.UUID, error) {
	if !o.loading.CompareAndSwap(false, true) {
		return uuid.Nil, core.ErrLoadInProgress
	}
	defer o.loading.Store(false)

	id := uuid.New()
	o.LoadProfiler.Reset()
	o.log.Infof("load %s: fetching %s", id, src)

	end := o.LoadProfiler.Scope("fetch")
	vol, err := src.Fetch(ctx)
	end()
	if err != nil {
		o.log.Errorf("load %s: fetch failed: %v", id, err)
		return id, fmt.Errorf("load %s: fetch: %w", id, err)
	}
	if err := vol.Validate(); err != nil {
		o.log.Errorf("load %s: invalid volume: %v", id, err)
		return id, fmt.Errorf("load %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		o.log.Warnf("load %s: cancelled before preprocessing", id)
		return id, err
	}

	end = o.LoadProfiler.Scope("process")
	binding, err := o.processor.Process(ctx, id, vol)
	end()
	if err != nil {
		o.log.Errorf("load %s: preprocess failed: %v", id, err)
		return id, fmt.Errorf("load %s: %w", id, err)
	}

	if old := o.current.Swap(binding); old != nil {
		o.retire(old)
	}
	o.LoadProfiler.Inc("loads")
	o.log.Infof("load %s: ready %v %v, max gradient %.6f", id, vol.Type, vol.Dims, binding.MaxGradient)
	if o.log.DebugEnabled() {
		o.log.Debugf("load %s: %s", id, o.LoadProfiler.StatsString())
	}
	return id, nil
}

// RequestResize records a new framebuffer size; the next tick applies it on
// the render goroutine.
func (o *Orchestrator) RequestResize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	o.resize.Store(&[2]int{width, height})
}

// Tick draws one frame when a volume is bound and does nothing when idle.
func (o *Orchestrator) Tick() error {
	o.drainRetired()
	if size := o.resize.Swap(nil); size != nil {
		o.encoder.Resize(size[0], size[1])
		o.params.SetAspect(float32(size[0]) / float32(size[1]))
	}

	b := o.current.Load()
	if b == nil {
		return nil
	}
	defer o.FrameProfiler.Scope("frame")()

	p := o.params.Snapshot()
	cam := gpu.NewCameraUniform(p, b.Dims, b.Spacing)
	tf := gpu.NewTransferUniform(p, b.MaxIntensity, b.MaxGradient)
	if err := o.encoder.WriteUniforms(cam, tf); err != nil {
		return err
	}
	if err := o.encoder.Draw(b); err != nil {
		return fmt.Errorf("draw %s: %w", b.ID, err)
	}
	o.frames.Add(1)
	return nil
}

// Run ticks once per value from ticks until ctx is done or the tick channel
// closes. Frame errors are logged and the loop carries on.
func (o *Orchestrator) Run(ctx context.Context, ticks TickSource) error {
	c := ticks.Ticks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-c:
			if !ok {
				return nil
			}
			if err := o.Tick(); err != nil {
				o.log.Warnf("frame skipped: %v", err)
			}
		}
	}
}

func (o *Orchestrator) retire(b *gpu.VolumeBinding) {
	o.retiredMu.Lock()
	o.retired = append(o.retired, b)
	o.retiredMu.Unlock()
}

func (o *Orchestrator) drainRetired() {
	o.retiredMu.Lock()
	retired := o.retired
	o.retired = nil
	o.retiredMu.Unlock()
	for _, b := range retired {
		o.log.Debugf("releasing volume %s", b.ID)
		b.Release()
	}
}

// Close releases the current and every retired binding. The render loop must
// have stopped.
func (o *Orchestrator) Close() {
	o.drainRetired()
	if b := o.current.Swap(nil); b != nil {
		b.Release()
	}
}
