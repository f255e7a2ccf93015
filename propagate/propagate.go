package propagate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cedarwing/tclio/kernel"
	"github.com/cedarwing/tclio/manifold"
	"github.com/cedarwing/tclio/noise"
)

// CovConfig holds the four 3-vector process-noise diagonals the
// forward pass folds into Q at every step (gyro meas, accel meas,
// gyro-bias random walk, accel-bias random walk).
type CovConfig struct {
	Gyr     *mat.VecDense
	Acc     *mat.VecDense
	BiasGyr *mat.VecDense
	BiasAcc *mat.VecDense
}

// Propagator runs the forward/backward pass across successive sweeps.
// It carries the two pieces of state that must survive across calls:
// the last IMU sample of the previous sweep (prepended to the next
// sweep's IMU list) and the last-compensated lidar end time (used to
// detect and skip IMU samples stale relative to the previous sweep).
type Propagator struct {
	lastImu          ImuSample
	haveLastImu      bool
	lastLidarEndTime float64
	accSLast         *mat.VecDense
	gyroLast         *mat.VecDense
	lastProcessNoise *noise.Gaussian
}

// ProcessNoise returns the zero-mean Gaussian wrapping the 12x12
// process-noise covariance Q used in the most recent Run call, or nil
// if Run has not been called yet or the most recent Run's Q was
// singular (not sampleable). Callers use this to Monte-Carlo
// sample the noise actually fed into the forward pass, the same way
// the teacher library's models expose their noise as a filter.Noise.
func (p *Propagator) ProcessNoise() *noise.Gaussian {
	return p.lastProcessNoise
}

// New creates a Propagator with no prior sweep history.
func New() *Propagator {
	return &Propagator{
		accSLast: mat.NewVecDense(3, nil),
		gyroLast: mat.NewVecDense(3, nil),
	}
}

// Reset discards cross-sweep history (used on Core.Reset/ResetWithSeed).
func (p *Propagator) Reset() {
	p.haveLastImu = false
	p.lastLidarEndTime = 0
	p.accSLast = mat.NewVecDense(3, nil)
	p.gyroLast = mat.NewVecDense(3, nil)
	p.lastProcessNoise = nil
}

// SeedLastImu primes the last-IMU-sample cache, used by
// Core.ResetWithSeed to resume propagation without an initial stale
// forward-propagation gap.
func (p *Propagator) SeedLastImu(s ImuSample) {
	p.lastImu = s
	p.haveLastImu = true
}

// Run executes the forward pass across meas.Imu, then the backward
// pass across meas.Points, mutating k's state/covariance via Predict
// and returning the undistorted points in sweep-end-frame coordinates,
// sorted by offset time ascending.
func (p *Propagator) Run(k *kernel.Kernel, cov CovConfig, meanAccNorm float64, meas MeasureGroup) ([]Point, error) {
	if len(meas.Imu) == 0 {
		return nil, fmt.Errorf("propagate: empty imu batch")
	}

	imuList := meas.Imu
	if p.haveLastImu {
		imuList = append([]ImuSample{p.lastImu}, imuList...)
	}

	points := make([]Point, len(meas.Points))
	copy(points, meas.Points)
	sort.Slice(points, func(i, j int) bool { return points[i].OffsetMs < points[j].OffsetMs })

	x0 := k.GetX()
	waypoints := []waypoint{{
		offsetTime: 0,
		acc:        cloneVec(p.accSLast),
		gyro:       cloneVec(p.gyroLast),
		vel:        cloneVec(x0.Vel),
		pos:        cloneVec(x0.Pos),
		rot:        manifold.RotMat(x0.Rot),
	}}

	Q := mat.NewSymDense(12, nil)
	setDiag3(Q, 0, cov.Gyr)
	setDiag3(Q, 3, cov.Acc)
	setDiag3(Q, 6, cov.BiasGyr)
	setDiag3(Q, 9, cov.BiasAcc)

	// A singular Q (e.g. a test's all-zero CovConfig) cannot back a
	// sampleable Gaussian; Predict itself tolerates it fine, so only
	// wire the noise.Gaussian when Q is genuinely sampleable and leave
	// Predict's Q untouched otherwise.
	if Qnoise, err := noise.NewGaussianZeroMean(Q); err == nil {
		p.lastProcessNoise = Qnoise
	} else {
		p.lastProcessNoise = nil
	}

	var lastInput kernel.Input
	var dt float64

	for i := 0; i < len(imuList)-1; i++ {
		head := imuList[i]
		tail := imuList[i+1]

		if tail.Time < p.lastLidarEndTime {
			continue
		}

		angvelAvr := avg3(head.Gyro, tail.Gyro)
		accAvr := avg3(head.Acc, tail.Acc)
		accAvr.ScaleVec(manifold.GravityMag/meanAccNorm, accAvr)

		if head.Time < p.lastLidarEndTime {
			dt = tail.Time - p.lastLidarEndTime
		} else {
			dt = tail.Time - head.Time
		}

		in := kernel.Input{Acc: accAvr, Gyro: angvelAvr}
		if _, err := k.Predict(dt, Q, in); err != nil {
			return nil, fmt.Errorf("propagate: forward predict: %w", err)
		}
		lastInput = in

		xs := k.GetX()
		angvelLast := mat.NewVecDense(3, nil)
		angvelLast.SubVec(angvelAvr, xs.Bg)

		accBodyLess := mat.NewVecDense(3, nil)
		accBodyLess.SubVec(accAvr, xs.Ba)
		accSLast := manifold.RotateVec(xs.Rot, accBodyLess)
		accSLast.AddVec(accSLast, xs.Grav.Vec())

		offsT := tail.Time - meas.LidarBegTime
		waypoints = append(waypoints, waypoint{
			offsetTime: offsT,
			acc:        accSLast,
			gyro:       angvelLast,
			vel:        cloneVec(xs.Vel),
			pos:        cloneVec(xs.Pos),
			rot:        manifold.RotMat(xs.Rot),
		})

		p.accSLast = accSLast
		p.gyroLast = angvelLast
	}

	imuEndTime := imuList[len(imuList)-1].Time
	note := 1.0
	if meas.LidarEndTime <= imuEndTime {
		note = -1.0
	}
	dt = note * (meas.LidarEndTime - imuEndTime)
	if _, err := k.Predict(dt, Q, lastInput); err != nil {
		return nil, fmt.Errorf("propagate: frame-end predict: %w", err)
	}

	endState := k.GetX()
	p.lastImu = imuList[len(imuList)-1]
	p.haveLastImu = true
	p.lastLidarEndTime = meas.LidarEndTime

	return backward(points, waypoints, endState)
}

// backward re-expresses each point into the sweep-end frame by
// walking the cached waypoints in reverse and, within each waypoint
// interval, walking points in reverse offset-time order. Two cursors
// (it_kp over waypoints, it_pcl over points) never revisit prior work,
// giving amortized O(len(points)+len(waypoints)) total work.
func backward(points []Point, waypoints []waypoint, endState *kernel.State) ([]Point, error) {
	if len(points) == 0 {
		return points, nil
	}

	endRotConj := manifold.QConj(endState.Rot)
	offConj := manifold.QConj(endState.OffsetRLI)

	itPcl := len(points) - 1
	for itKp := len(waypoints) - 1; itKp > 0; itKp-- {
		head := waypoints[itKp-1]
		tail := waypoints[itKp]

		rImu := head.rot
		velImu := head.vel
		posImu := head.pos
		accImu := tail.acc
		angvelAvr := tail.gyro

		// The first interval also takes the points at or before the
		// first waypoint's offset time, so every point is compensated.
		for itPcl >= 0 && (points[itPcl].OffsetMs/1000.0 > head.offsetTime || itKp == 1) {
			pt := points[itPcl]
			dtp := pt.OffsetMs/1000.0 - head.offsetTime

			phi := mat.NewVecDense(3, nil)
			phi.ScaleVec(dtp, angvelAvr)
			rIncr := manifold.RotMat(manifold.ExpSO3(phi))
			rI := &mat.Dense{}
			rI.Mul(rImu, rIncr)

			pI := mat.NewVecDense(3, []float64{pt.X, pt.Y, pt.Z})

			tEi := mat.NewVecDense(3, nil)
			tEi.AddScaledVec(posImu, dtp, velImu)
			tEi.AddScaledVec(tEi, 0.5*dtp*dtp, accImu)
			tEi.SubVec(tEi, endState.Pos)

			lP := mat.NewVecDense(3, nil)
			lP.MulVec(manifold.RotMat(endState.OffsetRLI), pI)
			lP.AddVec(lP, endState.OffsetTLI)

			wP := mat.NewVecDense(3, nil)
			wP.MulVec(rI, lP)
			wP.AddVec(wP, tEi)

			iPe := manifold.RotateVec(endRotConj, wP)
			iPe.SubVec(iPe, endState.OffsetTLI)
			lPe := manifold.RotateVec(offConj, iPe)

			points[itPcl].X = lPe.AtVec(0)
			points[itPcl].Y = lPe.AtVec(1)
			points[itPcl].Z = lPe.AtVec(2)

			itPcl--
		}
	}

	return points, nil
}

func avg3(a, b *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(3, nil)
	out.AddVec(a, b)
	out.ScaleVec(0.5, out)
	return out
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

func setDiag3(Q *mat.SymDense, offset int, v *mat.VecDense) {
	for i := 0; i < 3; i++ {
		Q.SetSym(offset+i, offset+i, v.AtVec(i))
	}
}
