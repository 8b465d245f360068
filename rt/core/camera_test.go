package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioParams() FrameParams {
	p := DefaultFrameParams()
	p.Camera = Camera{
		FovDeg: 20,
		Eye:    mgl32.Vec3{0, 0, -2},
		Target: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		Aspect: 1.0,
		Near:   0.1,
		Far:    1000,
	}
	return p
}

func TestDeriveMatrices_Deterministic(t *testing.T) {
	p := scenarioParams()
	p.VolumeRotation = [3]float32{12.5, -40, 91}

	a := DeriveMatrices(p)
	b := DeriveMatrices(p.Clone())

	// exact equality, not approximate
	assert.Equal(t, a.InvMVP, b.InvMVP)
	assert.Equal(t, a.MVP, b.MVP)
}

func TestDeriveMatrices_RotationOnlyChangesModel(t *testing.T) {
	base := scenarioParams()
	rotated := base.Clone()
	rotated.VolumeRotation = [3]float32{30, 45, 60}

	a := DeriveMatrices(base)
	b := DeriveMatrices(rotated)

	assert.Equal(t, a.View, b.View)
	assert.Equal(t, a.Projection, b.Projection)
	assert.NotEqual(t, a.Model, b.Model)
	assert.NotEqual(t, a.MVP, b.MVP)

	// combined transform is still projection * view * model
	assert.True(t, b.MVP.ApproxEqualThreshold(b.Projection.Mul4(b.View).Mul4(b.Model), 1e-6))
}

func TestDeriveMatrices_InverseRoundTrip(t *testing.T) {
	p := scenarioParams()
	p.VolumeRotation = [3]float32{10, 20, 30}
	m := DeriveMatrices(p)

	ident := m.MVP.Mul4(m.InvMVP)
	want := mgl32.Ident4()
	for i := range want {
		assert.InDelta(t, want[i], ident[i], 1e-4, "element %d", i)
	}
}

func TestModelMatrix_Order(t *testing.T) {
	// with no user rotation only the up-axis correction remains: +Z maps to +Y
	up := mgl32.TransformNormal(mgl32.Vec3{0, 0, 1}, ModelMatrix([3]float32{}))
	assert.InDelta(t, 0, up.X(), 1e-6)
	assert.InDelta(t, 1, up.Y(), 1e-6)
	assert.InDelta(t, 0, up.Z(), 1e-6)

	// Y is applied before X: compare against the explicit product
	rot := [3]float32{90, 90, 0}
	want := mgl32.HomogRotate3DX(mgl32.DegToRad(90)).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))).
		Mul4(UpAxisCorrection)
	assert.True(t, ModelMatrix(rot).ApproxEqualThreshold(want, 1e-6))
}

func TestCamera_ZeroAspectFallsBack(t *testing.T) {
	c := DefaultCamera()
	c.Aspect = 0
	want := mgl32.Perspective(mgl32.DegToRad(c.FovDeg), 1, c.Near, c.Far)
	require.Equal(t, want, c.GetProjectionMatrix())
}
