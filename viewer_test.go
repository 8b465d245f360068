package volumert

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/volumert/rt/app"
	"github.com/gekko3d/volumert/rt/core"
	"github.com/gekko3d/volumert/rt/gpu"
	"github.com/gekko3d/volumert/rt/source"
	"github.com/gekko3d/volumert/rt/volume"
)

// stubProcessor reports a fixed max gradient, optionally after gate closes.
type stubProcessor struct {
	maxGradient float32
	gate        chan struct{}
	entered     chan struct{}
}

func (p *stubProcessor) Process(ctx context.Context, id uuid.UUID, vol *volume.VoxelVolume) (*gpu.VolumeBinding, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &gpu.VolumeBinding{ID: id, Dims: vol.Dims, Type: vol.Type, MaxGradient: p.maxGradient}, nil
}

// countingSource wraps a static volume and counts fetches.
type countingSource struct {
	source.Static
	fetches *atomic.Int32
}

func (s countingSource) Fetch(ctx context.Context) (*volume.VoxelVolume, error) {
	s.fetches.Add(1)
	return s.Static.Fetch(ctx)
}

func rampSource(t *testing.T) countingSource {
	t.Helper()
	vol, err := volume.Ramp([3]int{5, 3, 2}, 0, volume.Float32)
	require.NoError(t, err)
	return countingSource{Static: source.Static{Name: "ramp", Volume: vol}, fetches: new(atomic.Int32)}
}

// offscreenViewer is a Viewer without a device, driving proc directly.
func offscreenViewer(cfg Config, proc app.VolumeProcessor) *Viewer {
	params := core.NewParamsStore(cfg.FrameParams())
	if cfg.Verify {
		proc = verifyingProcessor{next: proc}
	}
	return &Viewer{
		Params: params,
		cfg:    cfg,
		log:    core.NewNopLogger(),
		orch:   app.NewOrchestrator(params, nil, proc, nil),
	}
}

func TestVerifiedLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verify = true

	v := offscreenViewer(cfg, &stubProcessor{maxGradient: 0.25})
	id, err := v.Load(context.Background(), rampSource(t))
	require.NoError(t, err)
	assert.Equal(t, id, v.Orchestrator().Current().ID)

	bad := offscreenViewer(cfg, &stubProcessor{maxGradient: 0.5})
	_, err = bad.Load(context.Background(), rampSource(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max gradient mismatch")
	assert.Nil(t, bad.Orchestrator().Current())
}

func TestVerifiedLoadInProgressSkipsFetch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verify = true
	proc := &stubProcessor{maxGradient: 0.25, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	v := offscreenViewer(cfg, proc)

	first := rampSource(t)
	done := make(chan error, 1)
	go func() {
		_, err := v.Load(context.Background(), first)
		done <- err
	}()
	<-proc.entered

	second := rampSource(t)
	_, err := v.Load(context.Background(), second)
	assert.ErrorIs(t, err, core.ErrLoadInProgress)
	assert.Zero(t, second.fetches.Load())

	close(proc.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), first.fetches.Load())
}

func TestResetView(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rotation = [3]float32{0, 90, 0}
	v := offscreenViewer(cfg, &stubProcessor{})

	v.Params.SetAspect(2)
	v.Params.RotateVolume([3]float32{10, 0, 0})
	v.Params.SetSlicePlane(0.3)
	v.Params.Update(func(p *core.FrameParams) { p.Camera.FovDeg = 45 })

	v.ResetView()
	p := v.Params.Snapshot()
	assert.Equal(t, [3]float32{0, 90, 0}, p.VolumeRotation)
	assert.Equal(t, float32(1), p.SlicePlane)
	assert.Equal(t, cfg.Camera.FovDeg, p.Camera.FovDeg)
	assert.Equal(t, float32(2), p.Camera.Aspect)
}
