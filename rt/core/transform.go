package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// UpAxisCorrection turns the scanner's superior axis (+Z) into +Y so the
// volume stands upright before any user rotation is applied.
var UpAxisCorrection = mgl32.HomogRotate3DX(mgl32.DegToRad(-90))

// ModelMatrix composes the up-axis correction followed by the user rotation
// about Y, then Z, then X. rotDeg is indexed {X, Y, Z} in degrees.
func ModelMatrix(rotDeg [3]float32) mgl32.Mat4 {
	rx := mgl32.HomogRotate3DX(mgl32.DegToRad(rotDeg[0]))
	ry := mgl32.HomogRotate3DY(mgl32.DegToRad(rotDeg[1]))
	rz := mgl32.HomogRotate3DZ(mgl32.DegToRad(rotDeg[2]))

	// column vectors: the rightmost factor is applied first
	return rx.Mul4(rz).Mul4(ry).Mul4(UpAxisCorrection)
}
