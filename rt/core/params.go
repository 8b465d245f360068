package core

import (
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxTransferWeights is the number of alpha slots in the transfer uniform.
const MaxTransferWeights = 8

// AlphaWeight is one named opacity class of the transfer function.
type AlphaWeight struct {
	Name  string
	Alpha float32
}

// TransferFunction is an ordered list of material classes; class i covers
// the i-th equal band of normalized intensity.
type TransferFunction []AlphaWeight

func DefaultTransferFunction() TransferFunction {
	return TransferFunction{
		{Name: "air", Alpha: 0},
		{Name: "fat", Alpha: 0.05},
		{Name: "soft_tissue", Alpha: 0.2},
		{Name: "bone", Alpha: 0.9},
	}
}

func (tf TransferFunction) Clone() TransferFunction {
	if tf == nil {
		return nil
	}
	out := make(TransferFunction, len(tf))
	copy(out, tf)
	return out
}

func (tf TransferFunction) Alpha(name string) (float32, bool) {
	for _, w := range tf {
		if w.Name == name {
			return w.Alpha, true
		}
	}
	return 0, false
}

// Weights returns the alpha slots as packed into the transfer uniform.
// Entries past MaxTransferWeights are ignored.
func (tf TransferFunction) Weights() [MaxTransferWeights]float32 {
	var out [MaxTransferWeights]float32
	for i, w := range tf {
		if i >= MaxTransferWeights {
			break
		}
		out[i] = mgl32.Clamp(w.Alpha, 0, 1)
	}
	return out
}

// FrameParams is everything the control surface can change between ticks.
type FrameParams struct {
	Camera         Camera
	Transfer       TransferFunction
	VolumeRotation [3]float32 // degrees about X, Y, Z
	SlicePlane     float32    // normalized [0, 1] cut along the volume depth
}

func DefaultFrameParams() FrameParams {
	return FrameParams{
		Camera:     DefaultCamera(),
		Transfer:   DefaultTransferFunction(),
		SlicePlane: 1,
	}
}

func (p FrameParams) Clone() FrameParams {
	p.Transfer = p.Transfer.Clone()
	return p
}

// ParamsStore publishes immutable FrameParams values. Writers serialize on a
// mutex and swap a fresh copy in; readers never block and never see a
// half-applied edit.
type ParamsStore struct {
	mu      sync.Mutex
	latest  atomic.Pointer[FrameParams]
	version atomic.Uint64
}

func NewParamsStore(initial FrameParams) *ParamsStore {
	s := &ParamsStore{}
	p := initial.Clone()
	s.latest.Store(&p)
	return s
}

// Snapshot returns a private copy of the latest committed params.
func (s *ParamsStore) Snapshot() FrameParams {
	return s.latest.Load().Clone()
}

// Version increases by one on every committed update.
func (s *ParamsStore) Version() uint64 {
	return s.version.Load()
}

// Update applies fn to a copy of the current params and commits the result.
func (s *ParamsStore) Update(fn func(p *FrameParams)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.latest.Load().Clone()
	fn(&next)
	s.latest.Store(&next)
	s.version.Add(1)
}

func (s *ParamsStore) SetAspect(aspect float32) {
	s.Update(func(p *FrameParams) { p.Camera.Aspect = aspect })
}

func (s *ParamsStore) RotateVolume(delta [3]float32) {
	s.Update(func(p *FrameParams) {
		for i := range p.VolumeRotation {
			p.VolumeRotation[i] += delta[i]
		}
	})
}

func (s *ParamsStore) SetSlicePlane(v float32) {
	s.Update(func(p *FrameParams) { p.SlicePlane = mgl32.Clamp(v, 0, 1) })
}

// SetAlpha changes the named class, appending it when unknown.
func (s *ParamsStore) SetAlpha(name string, alpha float32) {
	s.Update(func(p *FrameParams) {
		for i := range p.Transfer {
			if p.Transfer[i].Name == name {
				p.Transfer[i].Alpha = alpha
				return
			}
		}
		p.Transfer = append(p.Transfer, AlphaWeight{Name: name, Alpha: alpha})
	})
}
