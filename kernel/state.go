// Package kernel implements the Manifold Filter Kernel (MFK): the
// 23-DOF product-manifold state (SO(3) x S^2 x R^n) and its
// closed-form error-state predict step.
package kernel

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/cedarwing/tclio/manifold"
)

// Dim is the dimension of the error state / covariance.
const Dim = 23

// Error-state block offsets, in the order spec'd for the state:
// pos, rot, offset_R_L_I, offset_T_L_I, vel, bg, ba, grav.
const (
	iPos   = 0
	iRot   = 3
	iOffR  = 6
	iOffT  = 9
	iVel   = 12
	iBg    = 15
	iBa    = 18
	iGrav  = 21
	gravDim = 2
)

// State is the nominal value of the 23-DOF product manifold.
type State struct {
	Pos       *mat.VecDense // world position, R^3
	Rot       quat.Number   // IMU->world rotation, SO(3)
	OffsetRLI quat.Number   // LiDAR->IMU rotation extrinsic, SO(3)
	OffsetTLI *mat.VecDense // LiDAR origin in IMU frame, R^3
	Vel       *mat.VecDense // world-frame velocity, R^3
	Bg        *mat.VecDense // gyro bias, R^3
	Ba        *mat.VecDense // accel bias, R^3
	Grav      *manifold.S2  // gravity direction, magnitude pinned to 9.81
}

// NewDefaultState returns the state the reference ImuProcess
// constructor sets before initialization: identity rotations, zero
// everything else, gravity pointing down the nominal z axis.
func NewDefaultState() *State {
	return &State{
		Pos:       mat.NewVecDense(3, nil),
		Rot:       manifold.IdentityQuat(),
		OffsetRLI: manifold.IdentityQuat(),
		OffsetTLI: mat.NewVecDense(3, nil),
		Vel:       mat.NewVecDense(3, nil),
		Bg:        mat.NewVecDense(3, nil),
		Ba:        mat.NewVecDense(3, nil),
		Grav:      manifold.NewS2WithMag(mat.NewVecDense(3, []float64{0, 0, -1}), manifold.GravityMag),
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	cp := func(v *mat.VecDense) *mat.VecDense {
		out := mat.NewVecDense(v.Len(), nil)
		out.CopyVec(v)
		return out
	}
	return &State{
		Pos:       cp(s.Pos),
		Rot:       s.Rot,
		OffsetRLI: s.OffsetRLI,
		OffsetTLI: cp(s.OffsetTLI),
		Vel:       cp(s.Vel),
		Bg:        cp(s.Bg),
		Ba:        cp(s.Ba),
		Grav:      manifold.NewS2WithMag(s.Grav.Vec(), s.Grav.Mag()),
	}
}

// Boxplus retracts a 23-dim error-state perturbation eps onto the
// nominal state s, returning the perturbed state. Block layout matches
// the iPos/iRot/... offsets above.
func (s *State) Boxplus(eps *mat.VecDense) *State {
	seg := func(off, n int) *mat.VecDense {
		v := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			v.SetVec(i, eps.AtVec(off+i))
		}
		return v
	}

	newPos := mat.NewVecDense(3, nil)
	newPos.AddVec(s.Pos, seg(iPos, 3))

	newRot := manifold.QMul(s.Rot, manifold.ExpSO3(seg(iRot, 3)))
	newOffR := manifold.QMul(s.OffsetRLI, manifold.ExpSO3(seg(iOffR, 3)))

	newOffT := mat.NewVecDense(3, nil)
	newOffT.AddVec(s.OffsetTLI, seg(iOffT, 3))

	newVel := mat.NewVecDense(3, nil)
	newVel.AddVec(s.Vel, seg(iVel, 3))

	newBg := mat.NewVecDense(3, nil)
	newBg.AddVec(s.Bg, seg(iBg, 3))

	newBa := mat.NewVecDense(3, nil)
	newBa.AddVec(s.Ba, seg(iBa, 3))

	newGrav := s.Grav.Boxplus(seg(iGrav, gravDim))

	return &State{
		Pos:       newPos,
		Rot:       newRot,
		OffsetRLI: newOffR,
		OffsetTLI: newOffT,
		Vel:       newVel,
		Bg:        newBg,
		Ba:        newBa,
		Grav:      newGrav,
	}
}

// Boxminus returns the 23-dim error-state perturbation that Boxplus
// would need to retract from s in order to reach other.
func (s *State) Boxminus(other *State) *mat.VecDense {
	out := mat.NewVecDense(Dim, nil)

	setSeg := func(off int, v *mat.VecDense) {
		for i := 0; i < v.Len(); i++ {
			out.SetVec(off+i, v.AtVec(i))
		}
	}

	dPos := mat.NewVecDense(3, nil)
	dPos.SubVec(other.Pos, s.Pos)
	setSeg(iPos, dPos)

	setSeg(iRot, manifold.LogSO3(manifold.QMul(manifold.QConj(s.Rot), other.Rot)))
	setSeg(iOffR, manifold.LogSO3(manifold.QMul(manifold.QConj(s.OffsetRLI), other.OffsetRLI)))

	dOffT := mat.NewVecDense(3, nil)
	dOffT.SubVec(other.OffsetTLI, s.OffsetTLI)
	setSeg(iOffT, dOffT)

	dVel := mat.NewVecDense(3, nil)
	dVel.SubVec(other.Vel, s.Vel)
	setSeg(iVel, dVel)

	dBg := mat.NewVecDense(3, nil)
	dBg.SubVec(other.Bg, s.Bg)
	setSeg(iBg, dBg)

	dBa := mat.NewVecDense(3, nil)
	dBa.SubVec(other.Ba, s.Ba)
	setSeg(iBa, dBa)

	setSeg(iGrav, s.Grav.Boxminus(other.Grav))

	return out
}

// Input is the bias-corrected-at-use IMU measurement driving Predict.
type Input struct {
	Acc  *mat.VecDense // specific force, m/s^2
	Gyro *mat.VecDense // angular velocity, rad/s
}
