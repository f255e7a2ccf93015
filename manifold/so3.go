// Package manifold implements the SO(3) and S² retractions used to keep
// the LIO error state on its product manifold: boxplus/boxminus, the
// exponential/logarithm map, and the right Jacobian the closed-form
// covariance propagation needs.
package manifold

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const angleTol = 1e-9

// Skew returns the 3x3 skew-symmetric cross-product matrix of v, such
// that Skew(v)*x == cross(v, x) for any 3-vector x.
func Skew(v mat.Vector) *mat.Dense {
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)
	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// ExpSO3 returns the unit quaternion corresponding to the SO(3)
// exponential map of the rotation vector phi (axis times angle).
func ExpSO3(phi mat.Vector) quat.Number {
	half := quat.Number{
		Imag: phi.AtVec(0) / 2,
		Jmag: phi.AtVec(1) / 2,
		Kmag: phi.AtVec(2) / 2,
	}
	return quat.Exp(half)
}

// LogSO3 returns the rotation vector phi such that ExpSO3(phi) == q,
// for unit quaternion q.
func LogSO3(q quat.Number) *mat.VecDense {
	l := quat.Log(q)
	return mat.NewVecDense(3, []float64{2 * l.Imag, 2 * l.Jmag, 2 * l.Kmag})
}

// QMul is the Hamilton product, i.e. the composition of rotations q1
// followed by q2 applied in the frame of q1 (q1*q2).
func QMul(q1, q2 quat.Number) quat.Number {
	return quat.Mul(q1, q2)
}

// QConj returns the conjugate (for unit quaternions, the inverse
// rotation) of q.
func QConj(q quat.Number) quat.Number {
	return quat.Conj(q)
}

// RotMat converts a unit quaternion to its equivalent 3x3 rotation
// matrix.
func RotMat(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RotateVec rotates the 3-vector v by the unit quaternion q, i.e.
// computes q*v*conj(q).
func RotateVec(q quat.Number, v mat.Vector) *mat.VecDense {
	p := quat.Number{Imag: v.AtVec(0), Jmag: v.AtVec(1), Kmag: v.AtVec(2)}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return mat.NewVecDense(3, []float64{r.Imag, r.Jmag, r.Kmag})
}

// RightJacobian returns the right Jacobian Jr(phi) of SO(3) at the
// rotation vector phi, used to linearize the bias/noise columns of
// the rotation error-state row.
func RightJacobian(phi mat.Vector) *mat.Dense {
	theta := norm3(phi)
	sk := Skew(phi)
	sk2 := &mat.Dense{}
	sk2.Mul(sk, sk)

	jr := eye3()
	if theta < angleTol {
		// Jr(phi) ~= I - 1/2 Skew(phi) + 1/6 Skew(phi)^2
		scaled := &mat.Dense{}
		scaled.Scale(-0.5, sk)
		jr.Add(jr, scaled)
		scaled2 := &mat.Dense{}
		scaled2.Scale(1.0/6, sk2)
		jr.Add(jr, scaled2)
		return jr
	}

	a := (1 - math.Cos(theta)) / (theta * theta)
	b := (theta - math.Sin(theta)) / (theta * theta * theta)

	t1 := &mat.Dense{}
	t1.Scale(-a, sk)
	t2 := &mat.Dense{}
	t2.Scale(b, sk2)

	jr.Add(jr, t1)
	jr.Add(jr, t2)
	return jr
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func norm3(v mat.Vector) float64 {
	return math.Sqrt(v.AtVec(0)*v.AtVec(0) + v.AtVec(1)*v.AtVec(1) + v.AtVec(2)*v.AtVec(2))
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() quat.Number {
	return quat.Number{Real: 1}
}
