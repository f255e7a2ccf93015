package lio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	filter "github.com/cedarwing/tclio"
	"github.com/cedarwing/tclio/initializer"
	"github.com/cedarwing/tclio/kernel"
	"github.com/cedarwing/tclio/propagate"
)

// Core is the facade bundling the Manifold Filter Kernel, the IMU
// Initializer and the Point Undistortion Engine into the single
// Process entry point ImuProcess bundles in one class.
type Core struct {
	cfg Config

	kernel *kernel.Kernel
	init   *initializer.Initializer
	prop   *propagate.Propagator

	needInit bool

	haveFirstLidarTime bool
	firstLidarTime     float64

	debugWriter io.Writer
	timingHook  func(time.Duration)
}

// New creates a Core ready to process its first MeasureGroup.
func New(cfg Config) (*Core, error) {
	k, err := kernel.New(kernel.NewDefaultState(), nil)
	if err != nil {
		return nil, fmt.Errorf("lio: %w", err)
	}

	ini := initializer.New(initializer.Extrinsic{R: cfg.Extrinsic.R, T: cfg.Extrinsic.T})
	ini.AccCovScale = cfg.AccCov
	ini.GyrCovScale = cfg.GyrCov

	return &Core{
		cfg:      cfg,
		kernel:   k,
		init:     ini,
		prop:     propagate.New(),
		needInit: true,
	}, nil
}

// SetExtrinsic updates the LiDAR->IMU calibration used to seed future
// initializations.
func (c *Core) SetExtrinsic(ext Extrinsic) {
	c.cfg.Extrinsic = ext
	c.init.Extrinsic = initializer.Extrinsic{R: ext.R, T: ext.T}
}

// SetGyrCov sets the gyro measurement noise diagonal (cov_gyr_scale).
// It both seeds the forward pass's process noise immediately and
// overrides the initializer's measurement-covariance estimate once
// INIT completes.
func (c *Core) SetGyrCov(scale *mat.VecDense) {
	c.cfg.GyrCov = scale
	c.init.GyrCovScale = scale
}

// SetAccCov sets the accelerometer measurement noise diagonal
// (cov_acc_scale), overriding the initializer's rescaled estimate once
// INIT completes.
func (c *Core) SetAccCov(scale *mat.VecDense) {
	c.cfg.AccCov = scale
	c.init.AccCovScale = scale
}

// SetGyrBiasCov sets the gyro-bias random-walk noise diagonal.
func (c *Core) SetGyrBiasCov(scale *mat.VecDense) { c.cfg.GyrBiasCov = scale }

// SetAccBiasCov sets the accel-bias random-walk noise diagonal.
func (c *Core) SetAccBiasCov(scale *mat.VecDense) { c.cfg.AccBiasCov = scale }

// SetDebugWriter attaches a writer that receives a line-oriented debug
// log. The only line written is "IMU initial done", once, when INIT
// completes; no per-sample (t, angular velocity, acceleration) lines
// are written.
func (c *Core) SetDebugWriter(w io.Writer) { c.debugWriter = w }

// SetTimingHook attaches a callback invoked with the wall-clock
// duration of every Process call that runs the undistortion pipeline
// (init-only calls are not timed), replacing the reference's unused
// t1,t2,t3 locals with an opt-in measurement.
func (c *Core) SetTimingHook(hook func(time.Duration)) { c.timingHook = hook }

// FirstLidarTime returns the LidarBegTime of the first MeasureGroup
// processed since the last Reset, or 0 if none has been processed yet.
func (c *Core) FirstLidarTime() float64 { return c.firstLidarTime }

// Position returns the current world-frame IMU position estimate.
func (c *Core) Position() *mat.VecDense { return c.kernel.GetX().Pos }

// Posterior returns the current error-state estimate (zero mean, 23x23
// covariance), mirroring kernel.Kernel.Posterior.
func (c *Core) Posterior() (filter.Estimate, error) { return c.kernel.Posterior() }

// Reset returns the Core to a cold start: the kernel is reseeded with
// the default state, the initializer is cleared, and the propagator
// forgets all cross-sweep history.
func (c *Core) Reset() {
	c.kernel.SetX(kernel.NewDefaultState())
	_ = c.kernel.SetP(mat.NewSymDense(kernel.Dim, nil))
	c.init.Reset()
	c.prop.Reset()
	c.needInit = true
	c.haveFirstLidarTime = false
	c.firstLidarTime = 0
}

// ResetWithSeed resets the Core like Reset, so INIT restarts, and
// additionally primes the propagator's last-IMU-sample cache with seed
// and firstLidarTime with startTimestamp. When INIT completes again the
// cache is replaced by the last INIT sample.
func (c *Core) ResetWithSeed(startTimestamp float64, seed ImuSample) {
	c.Reset()
	c.prop.SeedLastImu(seed)
	c.haveFirstLidarTime = true
	c.firstLidarTime = startTimestamp
}

// Process runs one MeasureGroup through the pipeline: while the
// initializer has not yet accumulated enough stationary samples, it
// only folds this batch's IMU samples into the running statistics and
// returns no points (mirroring the reference's early return while
// imu_need_init_ holds); once initialization completes, every
// subsequent call runs the full forward/backward undistortion pass and
// returns the compensated sweep.
//
// Malformed timestamps (NaN) or an end time preceding the begin time
// are a PreconditionViolation: the call returns an error wrapping
// ErrPrecondition and leaves all state untouched. An empty IMU batch is
// a TransientSkip per spec.md §7: it returns (nil, nil) with no
// mutation and no error, mirroring the reference's bare `return;` on
// meas.imu.empty().
func (c *Core) Process(mg MeasureGroup) (PointCloud, error) {
	if math.IsNaN(mg.LidarBegTime) || math.IsNaN(mg.LidarEndTime) {
		return nil, fmt.Errorf("%w: non-finite lidar timestamp", ErrPrecondition)
	}
	if mg.LidarEndTime < mg.LidarBegTime {
		return nil, fmt.Errorf("%w: lidar_end_time %g precedes lidar_beg_time %g", ErrPrecondition, mg.LidarEndTime, mg.LidarBegTime)
	}
	for _, s := range mg.Imu {
		if math.IsNaN(s.Time) {
			return nil, fmt.Errorf("%w: non-finite imu timestamp", ErrPrecondition)
		}
	}

	if len(mg.Imu) == 0 {
		return nil, nil
	}

	if !c.haveFirstLidarTime {
		c.haveFirstLidarTime = true
		c.firstLidarTime = mg.LidarBegTime
	}

	if c.needInit {
		for _, s := range mg.Imu {
			if err := c.init.Accumulate(s.Acc, s.Gyro); err != nil {
				if errors.Is(err, initializer.ErrDegenerate) {
					c.init.Reset()
					return nil, fmt.Errorf("%w: %v", ErrNumericalDegeneracy, err)
				}
				return nil, err
			}
		}

		if c.init.Done() {
			x, p := c.init.Seed()
			c.kernel.SetX(x)
			if err := c.kernel.SetP(p); err != nil {
				return nil, fmt.Errorf("lio: %w", err)
			}

			c.cfg.AccCov = c.init.ScaledAccCov()
			c.cfg.GyrCov = c.init.ScaledGyrCov()
			c.needInit = false
			c.prop.SeedLastImu(mg.Imu[len(mg.Imu)-1])

			if c.debugWriter != nil {
				fmt.Fprintf(c.debugWriter, "IMU initial done\n")
			}
		}
		return nil, nil
	}

	start := time.Now()

	points, err := c.prop.Run(c.kernel, propagate.CovConfig{
		Gyr:     c.cfg.GyrCov,
		Acc:     c.cfg.AccCov,
		BiasGyr: c.cfg.GyrBiasCov,
		BiasAcc: c.cfg.AccBiasCov,
	}, c.init.MeanAccNorm(), propagate.MeasureGroup{
		Imu:          mg.Imu,
		LidarBegTime: mg.LidarBegTime,
		LidarEndTime: mg.LidarEndTime,
		Points:       mg.Points,
	})
	if err != nil {
		c.init.Reset()
		c.needInit = true
		if errors.Is(err, ErrNumericalDegeneracy) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNumericalDegeneracy, err)
	}

	if c.timingHook != nil {
		c.timingHook(time.Since(start))
	}

	return PointCloud(points), nil
}
