package lio

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cedarwing/tclio/manifold"
)

// Config holds the calibration and noise parameters ImuProcess's
// set_extrinsic/set_gyr_cov/set_acc_cov/set_gyr_bias_cov/
// set_acc_bias_cov setters configure in the reference.
type Config struct {
	Extrinsic Extrinsic

	// GyrCov, AccCov double as the spec's cov_gyr_scale/cov_acc_scale:
	// when INIT completes they override the initializer's
	// measurement-covariance estimate, per spec.md §4.2, and from then
	// on they feed the forward pass's process-noise Q.
	GyrCov     *mat.VecDense
	AccCov     *mat.VecDense
	GyrBiasCov *mat.VecDense
	AccBiasCov *mat.VecDense
}

// DefaultConfig returns a Config with identity extrinsic, 0.1
// measurement covariances and 0.0001 bias random-walk covariances,
// matching the reference's pre-set_* default state.
func DefaultConfig() Config {
	return Config{
		Extrinsic:  Extrinsic{R: manifold.IdentityQuat(), T: mat.NewVecDense(3, nil)},
		GyrCov:     onesVec(3, 0.1),
		AccCov:     onesVec(3, 0.1),
		GyrBiasCov: onesVec(3, 0.0001),
		AccBiasCov: onesVec(3, 0.0001),
	}
}

func onesVec(n int, v float64) *mat.VecDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = v
	}
	return mat.NewVecDense(n, d)
}
