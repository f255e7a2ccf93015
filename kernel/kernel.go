package kernel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	filter "github.com/cedarwing/tclio"
	"github.com/cedarwing/tclio/estimate"
	"github.com/cedarwing/tclio/manifold"
)

// Kernel is the Manifold Filter Kernel. It owns the nominal state x
// and error-state covariance P and exposes Predict as the sole
// mutation point, returning a filter.Estimate the way the teacher
// library's estimators (Predict/Cov/SetCov) do.
type Kernel struct {
	x *State
	p *mat.SymDense
}

// New creates a Kernel seeded with the given state and covariance. A
// nil covariance seeds a zero 23x23 matrix.
func New(x *State, p *mat.SymDense) (*Kernel, error) {
	if x == nil {
		return nil, fmt.Errorf("invalid initial state: nil")
	}
	if p == nil {
		p = mat.NewSymDense(Dim, nil)
	}
	if p.SymmetricDim() != Dim {
		return nil, fmt.Errorf("invalid covariance dimension: %d", p.SymmetricDim())
	}
	return &Kernel{x: x, p: p}, nil
}

// GetX returns a copy of the current nominal state.
func (k *Kernel) GetX() *State { return k.x.Clone() }

// SetX overwrites the nominal state.
func (k *Kernel) SetX(x *State) { k.x = x }

// GetP returns a copy of the current error-state covariance.
func (k *Kernel) GetP() *mat.SymDense {
	cov := mat.NewSymDense(Dim, nil)
	cov.CopySym(k.p)
	return cov
}

// SetP overwrites the error-state covariance. It returns an error if
// cov is nil or has the wrong dimension.
func (k *Kernel) SetP(cov *mat.SymDense) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance: nil")
	}
	if cov.SymmetricDim() != Dim {
		return fmt.Errorf("invalid covariance dimension: %d", cov.SymmetricDim())
	}
	k.p = mat.NewSymDense(Dim, nil)
	k.p.CopySym(cov)
	return nil
}

// Posterior returns the current error-state as a filter.Estimate: the
// error state of an error-state filter is always zero-mean at rest,
// so the value is the zero vector and the covariance is P.
func (k *Kernel) Posterior() (filter.Estimate, error) {
	zero := mat.NewVecDense(Dim, nil)
	return estimate.NewBaseWithCov(zero, k.p)
}

// Predict advances the state and covariance across the interval dt
// given process noise Q (12x12, block-diagonal: gyro meas, accel
// meas, gyro-bias random walk, accel-bias random walk) and IMU input
// u. dt may be negative; every formula below is algebraic in dt, so
// no sign special-casing is required.
func (k *Kernel) Predict(dt float64, Q *mat.SymDense, u Input) (filter.Estimate, error) {
	if Q == nil || Q.SymmetricDim() != 12 {
		return nil, fmt.Errorf("invalid process noise dimension")
	}

	x := k.x

	omega := sub3(u.Gyro, x.Bg)
	acc := sub3(u.Acc, x.Ba)
	R := manifold.RotMat(x.Rot)

	// F, G Jacobians computed from the pre-update nominal state.
	F := k.jacobianF(dt, R, acc, omega)
	G := k.jacobianG(dt, R, omega)

	k.x = nominalStep(x, dt, u)

	// Covariance update: P <- F P F^T + G Q G^T, then resymmetrize.
	fp := &mat.Dense{}
	fp.Mul(F, k.p)
	fpft := &mat.Dense{}
	fpft.Mul(fp, F.T())

	gq := &mat.Dense{}
	gq.Mul(G, Q)
	gqgt := &mat.Dense{}
	gqgt.Mul(gq, G.T())

	sum := &mat.Dense{}
	sum.Add(fpft, gqgt)

	sym := mat.NewSymDense(Dim, nil)
	for i := 0; i < Dim; i++ {
		for j := i; j < Dim; j++ {
			v := 0.5 * (sum.At(i, j) + sum.At(j, i))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite covariance entry at (%d,%d)", i, j)
			}
			sym.SetSym(i, j, v)
		}
	}
	k.p = sym

	return k.Posterior()
}

// nominalStep advances the nominal state x across dt given input u,
// with no covariance bookkeeping. It is the pure function both
// Predict and the closed-form-vs-numeric Jacobian cross-check test
// build on.
func nominalStep(x *State, dt float64, u Input) *State {
	omega := sub3(u.Gyro, x.Bg)
	acc := sub3(u.Acc, x.Ba)

	R := manifold.RotMat(x.Rot)
	accWorld := &mat.VecDense{}
	accWorld.MulVec(R, acc)
	accWorld.AddVec(accWorld, x.Grav.Vec())

	newPos := mat.NewVecDense(3, nil)
	newPos.AddScaledVec(x.Pos, dt, x.Vel)
	newPos.AddScaledVec(newPos, 0.5*dt*dt, accWorld)

	newVel := mat.NewVecDense(3, nil)
	newVel.AddScaledVec(x.Vel, dt, accWorld)

	phi := mat.NewVecDense(3, nil)
	phi.ScaleVec(dt, omega)
	newRot := manifold.QMul(x.Rot, manifold.ExpSO3(phi))

	return &State{
		Pos:       newPos,
		Rot:       newRot,
		OffsetRLI: x.OffsetRLI,
		OffsetTLI: x.OffsetTLI,
		Vel:       newVel,
		Bg:        x.Bg,
		Ba:        x.Ba,
		Grav:      x.Grav,
	}
}

// jacobianF builds the 23x23 discrete-time state-transition Jacobian
// of the error-state dynamics around the pre-update state, using the
// right-Jacobian linearization of the SO(3) rotation error and the S^2
// local chart for the gravity error.
func (k *Kernel) jacobianF(dt float64, R *mat.Dense, acc, omega *mat.VecDense) *mat.Dense {
	F := identity(Dim)

	// pos row
	setBlock(F, iPos, iVel, scaled(eye3(), dt))
	setBlock(F, iPos, iRot, scaled(mulDense(R, manifold.Skew(acc)), -0.5*dt*dt))
	setBlock(F, iPos, iBa, scaled(R, -0.5*dt*dt))
	setBlock(F, iPos, iGrav, scaled(k.x.Grav.Bx(), 0.5*dt*dt))

	// vel row
	setBlock(F, iVel, iRot, scaled(mulDense(R, manifold.Skew(acc)), -dt))
	setBlock(F, iVel, iBa, scaled(R, -dt))
	setBlock(F, iVel, iGrav, scaled(k.x.Grav.Bx(), dt))

	// rot row
	phi := mat.NewVecDense(3, nil)
	phi.ScaleVec(dt, omega)
	expNeg := manifold.RotMat(manifold.QConj(manifold.ExpSO3(phi)))
	setBlock(F, iRot, iRot, expNeg)
	jr := manifold.RightJacobian(phi)
	setBlock(F, iRot, iBg, scaled(jr, -dt))

	// offset_R_L_I, offset_T_L_I, bg, ba, grav rows: identity (already set)
	return F
}

// jacobianG builds the 23x12 noise-input Jacobian, with noise column
// blocks ordered [gyro meas, accel meas, gyro-bias r.w., accel-bias
// r.w.] to match Q's block order.
func (k *Kernel) jacobianG(dt float64, R *mat.Dense, omega *mat.VecDense) *mat.Dense {
	G := mat.NewDense(Dim, 12, nil)

	phi := mat.NewVecDense(3, nil)
	phi.ScaleVec(dt, omega)
	jr := manifold.RightJacobian(phi)

	setBlockG(G, iRot, 0, scaled(jr, -dt))
	setBlockG(G, iPos, 3, scaled(R, -0.5*dt*dt))
	setBlockG(G, iVel, 3, scaled(R, -dt))
	setBlockG(G, iBg, 6, scaled(eye3(), dt))
	setBlockG(G, iBa, 9, scaled(eye3(), dt))

	return G
}

func sub3(a, b *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(3, nil)
	out.SubVec(a, b)
	return out
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func scaled(m *mat.Dense, s float64) *mat.Dense {
	out := &mat.Dense{}
	out.Scale(s, m)
	return out
}

func mulDense(a, b *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Mul(a, b)
	return out
}

func setBlock(dst *mat.Dense, row, col int, block mat.Matrix) {
	r, c := block.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(row+i, col+j, block.At(i, j))
		}
	}
}

func setBlockG(dst *mat.Dense, row, col int, block mat.Matrix) {
	setBlock(dst, row, col, block)
}
