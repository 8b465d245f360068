package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the orbit-less look-at camera driven by the control surface.
type Camera struct {
	FovDeg float32
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3
	Aspect float32
	Near   float32
	Far    float32
}

func DefaultCamera() Camera {
	return Camera{
		FovDeg: 20,
		Eye:    mgl32.Vec3{0, 0, -2},
		Target: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 1, 0},
		Aspect: 1,
		Near:   0.1,
		Far:    1000,
	}
}

func (c Camera) GetViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}

func (c Camera) GetProjectionMatrix() mgl32.Mat4 {
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FovDeg), aspect, c.Near, c.Far)
}

// Matrices holds every transform derived from one FrameParams snapshot.
type Matrices struct {
	Model      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
	MVP        mgl32.Mat4
	InvMVP     mgl32.Mat4
}

// DeriveMatrices is a pure function of p: identical snapshots give
// bit-identical results.
func DeriveMatrices(p FrameParams) Matrices {
	model := ModelMatrix(p.VolumeRotation)
	view := p.Camera.GetViewMatrix()
	proj := p.Camera.GetProjectionMatrix()
	mvp := proj.Mul4(view).Mul4(model)
	return Matrices{
		Model:      model,
		View:       view,
		Projection: proj,
		MVP:        mvp,
		InvMVP:     mvp.Inv(),
	}
}

// EyeInObjectSpace maps the camera position into the volume's model space.
func (m Matrices) EyeInObjectSpace(eye mgl32.Vec3) mgl32.Vec3 {
	// model is a pure rotation, so its inverse is its transpose
	return mgl32.TransformCoordinate(eye, m.Model.Transpose())
}
