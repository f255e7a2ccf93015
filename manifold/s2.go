package manifold

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// GravityMag is the gravity magnitude pinned by the S2 gravity
// manifold; only the direction is estimated.
const GravityMag = 9.81

// S2 is a 2-DOF manifold value: a unit direction on the 2-sphere,
// scaled by a fixed magnitude. It is used for the gravity state,
// whose magnitude is known a priori and whose direction is the only
// quantity the filter estimates.
type S2 struct {
	mag float64
	u   *mat.VecDense // unit vector
}

// NewS2 builds an S2 value from a raw vector; its norm becomes the
// fixed magnitude and its direction the initial value.
func NewS2(vec mat.Vector) *S2 {
	n := norm3(vec)
	u := mat.NewVecDense(3, []float64{vec.AtVec(0) / n, vec.AtVec(1) / n, vec.AtVec(2) / n})
	return &S2{mag: n, u: u}
}

// NewS2WithMag builds an S2 value with an explicit fixed magnitude
// from a (possibly unnormalized) direction vector.
func NewS2WithMag(dir mat.Vector, mag float64) *S2 {
	n := norm3(dir)
	u := mat.NewVecDense(3, []float64{dir.AtVec(0) / n, dir.AtVec(1) / n, dir.AtVec(2) / n})
	return &S2{mag: mag, u: u}
}

// Vec returns the full 3-vector value (direction scaled by magnitude).
func (s *S2) Vec() *mat.VecDense {
	v := mat.NewVecDense(3, nil)
	v.ScaleVec(s.mag, s.u)
	return v
}

// Mag returns the fixed magnitude of this S2 value.
func (s *S2) Mag() float64 { return s.mag }

// basis returns an orthonormal basis (b1, b2) of the tangent plane at
// the current direction u, following the same construction the MTK S2
// manifold type uses: pick a reference axis not parallel to u, project
// it out, and complete the right-handed pair with a cross product.
func (s *S2) basis() (b1, b2 *mat.VecDense) {
	ref := mat.NewVecDense(3, []float64{1, 0, 0})
	if math.Abs(s.u.AtVec(0)) > 0.9 {
		ref = mat.NewVecDense(3, []float64{0, 1, 0})
	}

	b1 = cross(s.u, ref)
	normalize(b1)
	b2 = cross(s.u, b1)
	normalize(b2)
	return b1, b2
}

// Bx returns the 3x2 Jacobian of Vec() with respect to the local
// tangent perturbation at the current value (i.e. d Vec(u boxplus
// delta) / d delta, evaluated at delta=0).
func (s *S2) Bx() *mat.Dense {
	b1, b2 := s.basis()
	bx := mat.NewDense(3, 2, nil)
	for i := 0; i < 3; i++ {
		bx.Set(i, 0, s.mag*b1.AtVec(i))
		bx.Set(i, 1, s.mag*b2.AtVec(i))
	}
	return bx
}

// Boxplus retracts the 2-dim tangent increment delta onto the
// manifold, returning the new S2 value.
func (s *S2) Boxplus(delta mat.Vector) *S2 {
	b1, b2 := s.basis()
	d0, d1 := delta.AtVec(0), delta.AtVec(1)
	n := math.Sqrt(d0*d0 + d1*d1)

	newU := mat.NewVecDense(3, nil)
	if n < angleTol {
		// newU ~= u + b1*d0 + b2*d1, renormalized
		newU.AddScaledVec(s.u, d0, b1)
		newU.AddScaledVec(newU, d1, b2)
	} else {
		cu := mat.NewVecDense(3, nil)
		cu.ScaleVec(math.Cos(n), s.u)

		tang := mat.NewVecDense(3, nil)
		tang.AddScaledVec(tang, d0, b1)
		tang.AddScaledVec(tang, d1, b2)
		tang.ScaleVec(math.Sin(n)/n, tang)

		newU.AddVec(cu, tang)
	}
	normalize(newU)
	return NewS2WithMag(newU, s.mag)
}

// Boxminus returns the 2-dim tangent increment that Boxplus would
// need to retract from s in order to reach other.
func (s *S2) Boxminus(other *S2) *mat.VecDense {
	b1, b2 := s.basis()
	cosang := dot3(s.u, other.u)
	cosang = math.Max(-1, math.Min(1, cosang))
	ang := math.Acos(cosang)

	if ang < angleTol {
		return mat.NewVecDense(2, []float64{0, 0})
	}

	// project other.u onto the tangent plane at s.u, scaled by angle
	proj := mat.NewVecDense(3, nil)
	proj.AddScaledVec(other.u, -cosang, s.u)
	normalize(proj)
	proj.ScaleVec(ang, proj)

	return mat.NewVecDense(2, []float64{dot3(proj, b1), dot3(proj, b2)})
}

func cross(a, b mat.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{
		a.AtVec(1)*b.AtVec(2) - a.AtVec(2)*b.AtVec(1),
		a.AtVec(2)*b.AtVec(0) - a.AtVec(0)*b.AtVec(2),
		a.AtVec(0)*b.AtVec(1) - a.AtVec(1)*b.AtVec(0),
	})
}

func dot3(a, b mat.Vector) float64 {
	return a.AtVec(0)*b.AtVec(0) + a.AtVec(1)*b.AtVec(1) + a.AtVec(2)*b.AtVec(2)
}

func normalize(v *mat.VecDense) {
	n := norm3(v)
	if n < angleTol {
		return
	}
	v.ScaleVec(1/n, v)
}
