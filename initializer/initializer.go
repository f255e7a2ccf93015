// Package initializer implements the IMU Initializer (INIT): it
// accumulates the first samples of a stationary window and seeds the
// Manifold Filter Kernel's gravity, gyro bias and covariance.
package initializer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/cedarwing/tclio/kernel"
	"github.com/cedarwing/tclio/manifold"
	localmatrix "github.com/cedarwing/tclio/matrix"
)

// MaxSamples is the number of IMU samples the initializer accumulates
// before seeding the filter (spec MAX_INI_COUNT).
const MaxSamples = 10

// degenerateAccNorm is the threshold below which the mean specific
// force is considered degenerate (the platform cannot be stationary
// and reporting near-zero specific force at the same time).
const degenerateAccNorm = 1e-6

// Extrinsic is the LiDAR->IMU extrinsic calibration the initializer
// seeds into the filter state verbatim.
type Extrinsic struct {
	R quat.Number
	T *mat.VecDense
}

// Initializer accumulates Welford running mean/variance of specific
// force and angular velocity over the first MaxSamples IMU samples.
type Initializer struct {
	n int

	meanAcc *mat.VecDense
	meanGyr *mat.VecDense
	covAcc  *mat.VecDense // diagonal of the sample covariance
	covGyr  *mat.VecDense

	accSamples *mat.Dense // N x 3, kept only for the batch-mean cross-check
	gyrSamples *mat.Dense

	Extrinsic Extrinsic

	// AccCovScale, GyrCovScale override the measurement covariance
	// once initialization completes (spec's cov_acc_scale/cov_gyr_scale).
	AccCovScale *mat.VecDense
	GyrCovScale *mat.VecDense
}

// New creates an empty Initializer.
func New(ext Extrinsic) *Initializer {
	return &Initializer{
		meanAcc: mat.NewVecDense(3, nil),
		meanGyr: mat.NewVecDense(3, nil),
		covAcc:  mat.NewVecDense(3, nil),
		covGyr:  mat.NewVecDense(3, nil),
		Extrinsic: ext,
	}
}

// Reset discards all accumulated samples, returning the Initializer to
// a cold start (used by Core.Reset and on NumericalDegeneracy
// recovery).
func (ini *Initializer) Reset() {
	ini.n = 0
	ini.meanAcc = mat.NewVecDense(3, nil)
	ini.meanGyr = mat.NewVecDense(3, nil)
	ini.covAcc = mat.NewVecDense(3, nil)
	ini.covGyr = mat.NewVecDense(3, nil)
	ini.accSamples = nil
	ini.gyrSamples = nil
}

// Done reports whether the initializer has seen enough samples to
// seed the filter.
func (ini *Initializer) Done() bool {
	return ini.n >= MaxSamples
}

// Accumulate folds one IMU sample into the running Welford statistics.
// It returns an error wrapping ErrDegenerate if, after folding, the
// mean specific force is too close to zero to determine gravity
// direction — the caller should Reset and restart accumulation.
func (ini *Initializer) Accumulate(acc, gyr *mat.VecDense) error {
	ini.n++
	n := float64(ini.n)

	for i := 0; i < 3; i++ {
		a, g := acc.AtVec(i), gyr.AtVec(i)

		prevMeanA := ini.meanAcc.AtVec(i)
		newMeanA := prevMeanA + (a-prevMeanA)/n
		ini.meanAcc.SetVec(i, newMeanA)

		prevMeanG := ini.meanGyr.AtVec(i)
		newMeanG := prevMeanG + (g-prevMeanG)/n
		ini.meanGyr.SetVec(i, newMeanG)

		da := a - newMeanA
		ini.covAcc.SetVec(i, ini.covAcc.AtVec(i)*(n-1)/n+da*da*(n-1)/(n*n))

		dg := g - newMeanG
		ini.covGyr.SetVec(i, ini.covGyr.AtVec(i)*(n-1)/n+dg*dg*(n-1)/(n*n))
	}

	ini.appendSample(acc, gyr)

	if norm3(ini.meanAcc) < degenerateAccNorm {
		return fmt.Errorf("%w: mean specific force norm %g below threshold", ErrDegenerate, norm3(ini.meanAcc))
	}
	return nil
}

func (ini *Initializer) appendSample(acc, gyr *mat.VecDense) {
	row := mat.NewDense(1, 3, []float64{acc.AtVec(0), acc.AtVec(1), acc.AtVec(2)})
	if ini.accSamples == nil {
		ini.accSamples = row
	} else {
		ini.accSamples = stackRows(ini.accSamples, row)
	}

	grow := mat.NewDense(1, 3, []float64{gyr.AtVec(0), gyr.AtVec(1), gyr.AtVec(2)})
	if ini.gyrSamples == nil {
		ini.gyrSamples = grow
	} else {
		ini.gyrSamples = stackRows(ini.gyrSamples, grow)
	}
}

func stackRows(a, b *mat.Dense) *mat.Dense {
	ra, c := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra+rb, c, nil)
	out.Slice(0, ra, 0, c).(*mat.Dense).Copy(a)
	out.Slice(ra, ra+rb, 0, c).(*mat.Dense).Copy(b)
	return out
}

// BatchMean recomputes the sample mean directly from the accumulated
// batch (using matrix.ColMeans), as a cross-check against the
// incremental Welford mean: the two must agree to floating-point
// tolerance.
func (ini *Initializer) BatchMean() (meanAcc, meanGyr *mat.VecDense) {
	accMean := localmatrix.ColMeans(ini.accSamples)
	gyrMean := localmatrix.ColMeans(ini.gyrSamples)
	meanAcc = mat.NewVecDense(3, accMean)
	meanGyr = mat.NewVecDense(3, gyrMean)
	return meanAcc, meanGyr
}

// Seed produces the posterior state and covariance to inject into the
// kernel once Done() is true, following the reference ImuProcess's
// IMU_init exactly: gravity opposite the mean specific force, gyro
// bias equal to mean angular velocity, zero accel bias, and the fixed
// diagonal covariance pattern (rather than the spec prose's looser
// block naming, this mirrors IMU_Processing.hpp's actual init_P
// assignments index-for-index).
func (ini *Initializer) Seed() (*kernel.State, *mat.SymDense) {
	x := kernel.NewDefaultState()

	meanAccNorm := norm3(ini.meanAcc)
	dir := mat.NewVecDense(3, nil)
	dir.ScaleVec(-1/meanAccNorm, ini.meanAcc)
	x.Grav = manifold.NewS2WithMag(dir, manifold.GravityMag)

	x.Bg.CopyVec(ini.meanGyr)
	x.Ba = mat.NewVecDense(3, nil)
	x.OffsetRLI = ini.Extrinsic.R
	x.OffsetTLI = ini.Extrinsic.T

	p := mat.NewSymDense(kernel.Dim, nil)
	for i := 0; i < kernel.Dim; i++ {
		p.SetSym(i, i, 1.0)
	}
	for i := 6; i <= 8; i++ {
		p.SetSym(i, i, 1e-5)
	}
	for i := 9; i <= 11; i++ {
		p.SetSym(i, i, 1e-5)
	}
	for i := 15; i <= 17; i++ {
		p.SetSym(i, i, 1e-4)
	}
	for i := 18; i <= 20; i++ {
		p.SetSym(i, i, 1e-3)
	}
	for i := 21; i <= 22; i++ {
		p.SetSym(i, i, 1e-5)
	}

	return x, p
}

// ScaledAccCov returns the measurement acceleration covariance,
// rescaled to account for gravity normalization (cov_acc *
// (9.81/||mean_acc||)^2), then overridden by AccCovScale if set.
func (ini *Initializer) ScaledAccCov() *mat.VecDense {
	meanAccNorm := norm3(ini.meanAcc)
	scale := (manifold.GravityMag / meanAccNorm)
	scale *= scale

	out := mat.NewVecDense(3, nil)
	out.ScaleVec(scale, ini.covAcc)

	if ini.AccCovScale != nil {
		out.CopyVec(ini.AccCovScale)
	}
	return out
}

// ScaledGyrCov returns the gyro measurement covariance, overridden by
// GyrCovScale if set (the reference overrides cov_gyr unconditionally
// on init completion too).
func (ini *Initializer) ScaledGyrCov() *mat.VecDense {
	out := mat.NewVecDense(3, nil)
	out.CopyVec(ini.covGyr)
	if ini.GyrCovScale != nil {
		out.CopyVec(ini.GyrCovScale)
	}
	return out
}

// MeanAccNorm returns the current running mean specific-force norm,
// used by the forward pass to rescale midpoint-integrated
// acceleration to unit gravity.
func (ini *Initializer) MeanAccNorm() float64 {
	return norm3(ini.meanAcc)
}

func norm3(v *mat.VecDense) float64 {
	return math.Sqrt(v.AtVec(0)*v.AtVec(0) + v.AtVec(1)*v.AtVec(1) + v.AtVec(2)*v.AtVec(2))
}
