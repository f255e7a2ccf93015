package manifold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

func TestExpLogRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, phi := range []*mat.VecDense{
		mat.NewVecDense(3, []float64{0.1, -0.2, 0.05}),
		mat.NewVecDense(3, []float64{0, 0, 0}),
		mat.NewVecDense(3, []float64{1.2, 0.3, -0.7}),
	} {
		q := ExpSO3(phi)
		back := LogSO3(q)
		for i := 0; i < 3; i++ {
			assert.InDelta(phi.AtVec(i), back.AtVec(i), 1e-9)
		}
	}
}

func TestRotMatOrthonormal(t *testing.T) {
	assert := assert.New(t)

	phi := mat.NewVecDense(3, []float64{0.4, -0.6, 0.9})
	q := ExpSO3(phi)
	R := RotMat(q)

	RT := R.T()
	prod := &mat.Dense{}
	prod.Mul(R, RT)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, prod.At(i, j), 1e-9)
		}
	}

	det := R.At(0, 0)*(R.At(1, 1)*R.At(2, 2)-R.At(1, 2)*R.At(2, 1)) -
		R.At(0, 1)*(R.At(1, 0)*R.At(2, 2)-R.At(1, 2)*R.At(2, 0)) +
		R.At(0, 2)*(R.At(1, 0)*R.At(2, 1)-R.At(1, 1)*R.At(2, 0))
	assert.InDelta(1.0, det, 1e-9)
}

func TestQConjIsInverseForUnitQuaternion(t *testing.T) {
	assert := assert.New(t)

	phi := mat.NewVecDense(3, []float64{0.3, 0.1, -0.4})
	q := ExpSO3(phi)
	id := QMul(q, QConj(q))

	assert.InDelta(1.0, id.Real, 1e-9)
	assert.InDelta(0.0, id.Imag, 1e-9)
	assert.InDelta(0.0, id.Jmag, 1e-9)
	assert.InDelta(0.0, id.Kmag, 1e-9)
}

func TestRotateVecMatchesRotMat(t *testing.T) {
	assert := assert.New(t)

	phi := mat.NewVecDense(3, []float64{0.2, 0.5, -0.3})
	q := ExpSO3(phi)
	v := mat.NewVecDense(3, []float64{1, 2, 3})

	viaQuat := RotateVec(q, v)

	viaMat := &mat.VecDense{}
	viaMat.MulVec(RotMat(q), v)

	for i := 0; i < 3; i++ {
		assert.InDelta(viaMat.AtVec(i), viaQuat.AtVec(i), 1e-9)
	}
}

func TestRightJacobianSmallAngle(t *testing.T) {
	assert := assert.New(t)

	phi := mat.NewVecDense(3, []float64{1e-10, 1e-10, 1e-10})
	jr := RightJacobian(phi)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, jr.At(i, j), 1e-6)
		}
	}
}

func TestRightJacobianAtZeroAngleIsIdentity(t *testing.T) {
	assert := assert.New(t)

	jr := RightJacobian(mat.NewVecDense(3, []float64{0, 0, 0}))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, jr.At(i, j), 1e-12)
		}
	}
}

func TestSkewCrossProduct(t *testing.T) {
	assert := assert.New(t)

	a := mat.NewVecDense(3, []float64{1, 0, 0})
	b := mat.NewVecDense(3, []float64{0, 1, 0})

	out := &mat.VecDense{}
	out.MulVec(Skew(a), b)

	assert.InDelta(0.0, out.AtVec(0), 1e-12)
	assert.InDelta(0.0, out.AtVec(1), 1e-12)
	assert.InDelta(1.0, out.AtVec(2), 1e-12)
}

func TestIdentityQuatIsNoRotation(t *testing.T) {
	assert := assert.New(t)

	id := IdentityQuat()
	assert.Equal(quat.Number{Real: 1}, id)

	v := mat.NewVecDense(3, []float64{1, 2, 3})
	rotated := RotateVec(id, v)
	for i := 0; i < 3; i++ {
		assert.InDelta(v.AtVec(i), rotated.AtVec(i), 1e-12)
	}
}

func TestExpSO3KnownQuarterTurn(t *testing.T) {
	assert := assert.New(t)

	phi := mat.NewVecDense(3, []float64{0, 0, math.Pi / 2})
	q := ExpSO3(phi)
	v := mat.NewVecDense(3, []float64{1, 0, 0})
	rotated := RotateVec(q, v)

	assert.InDelta(0.0, rotated.AtVec(0), 1e-9)
	assert.InDelta(1.0, rotated.AtVec(1), 1e-9)
	assert.InDelta(0.0, rotated.AtVec(2), 1e-9)
}
