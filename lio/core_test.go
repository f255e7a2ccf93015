package lio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/cedarwing/tclio/initializer"
	"github.com/cedarwing/tclio/manifold"
)

func stationarySample() ImuSample {
	return ImuSample{
		Acc:  mat.NewVecDense(3, []float64{0, 0, manifold.GravityMag}),
		Gyro: mat.NewVecDense(3, nil),
	}
}

func initCore(t *testing.T) *Core {
	c, err := New(DefaultConfig())
	assert.NoError(t, err)

	for i := 0; i < initializer.MaxSamples; i++ {
		s := stationarySample()
		s.Time = float64(i) * 0.01
		mg := MeasureGroup{
			Imu:          []ImuSample{s},
			LidarBegTime: s.Time,
			LidarEndTime: s.Time,
		}
		out, err := c.Process(mg)
		assert.NoError(t, err)
		assert.Nil(t, out)
	}
	return c
}

func TestProcessSkipsEmptyImuBatchSilently(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	out, err := c.Process(MeasureGroup{})
	assert.NoError(err)
	assert.Nil(out)
}

func TestProcessRejectsMalformedTimestamps(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	_, err = c.Process(MeasureGroup{
		Imu:          []ImuSample{stationarySample()},
		LidarBegTime: 1,
		LidarEndTime: 0,
	})
	assert.ErrorIs(err, ErrPrecondition)

	s := stationarySample()
	s.Time = math.NaN()
	_, err = c.Process(MeasureGroup{
		Imu:          []ImuSample{s},
		LidarBegTime: 0,
		LidarEndTime: 1,
	})
	assert.ErrorIs(err, ErrPrecondition)
}

func TestProcessStaysInInitUntilEnoughSamples(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	for i := 0; i < initializer.MaxSamples-1; i++ {
		s := stationarySample()
		s.Time = float64(i) * 0.01
		out, err := c.Process(MeasureGroup{
			Imu:          []ImuSample{s},
			LidarBegTime: s.Time,
			LidarEndTime: s.Time,
		})
		assert.NoError(err)
		assert.Nil(out)
	}
	assert.True(c.needInit)
}

func TestProcessCompletesInitThenUndistorts(t *testing.T) {
	assert := assert.New(t)

	c := initCore(t)
	assert.False(c.needInit)

	base := float64(initializer.MaxSamples) * 0.01
	s0 := stationarySample()
	s0.Time = base
	s1 := stationarySample()
	s1.Time = base + 0.1

	mg := MeasureGroup{
		Imu:          []ImuSample{s0, s1},
		LidarBegTime: base,
		LidarEndTime: base + 0.1,
		Points: []Point{
			{OffsetMs: 20, X: 1, Y: 0, Z: 0},
			{OffsetMs: 80, X: 0, Y: 1, Z: 0},
		},
	}

	out, err := c.Process(mg)
	assert.NoError(err)
	assert.Len(out, 2)
}

func TestProcessDetectsDegenerateInitialization(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	zero := ImuSample{Acc: mat.NewVecDense(3, nil), Gyro: mat.NewVecDense(3, nil)}
	_, err = c.Process(MeasureGroup{
		Imu:          []ImuSample{zero},
		LidarBegTime: 0,
		LidarEndTime: 0,
	})
	assert.ErrorIs(err, ErrNumericalDegeneracy)
	assert.True(c.needInit)
}

func TestResetReturnsToColdStart(t *testing.T) {
	assert := assert.New(t)

	c := initCore(t)
	assert.False(c.needInit)

	c.Reset()
	assert.True(c.needInit)
	assert.Equal(0.0, c.FirstLidarTime())

	pos := c.Position()
	for i := 0; i < 3; i++ {
		assert.Equal(0.0, pos.AtVec(i))
	}
}

func TestResetWithSeedRestartsInitAndSetsFirstLidarTime(t *testing.T) {
	assert := assert.New(t)

	c := initCore(t)
	seed := stationarySample()
	seed.Time = 5.0

	c.ResetWithSeed(5.0, seed)
	assert.True(c.needInit)
	assert.Equal(5.0, c.FirstLidarTime())
}

func TestSetGyrAccCovOverridesPostInitEstimate(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	gyrScale := mat.NewVecDense(3, []float64{7, 7, 7})
	accScale := mat.NewVecDense(3, []float64{9, 9, 9})
	c.SetGyrCov(gyrScale)
	c.SetAccCov(accScale)

	for i := 0; i < initializer.MaxSamples; i++ {
		s := stationarySample()
		s.Time = float64(i) * 0.01
		_, err := c.Process(MeasureGroup{
			Imu:          []ImuSample{s},
			LidarBegTime: s.Time,
			LidarEndTime: s.Time,
		})
		assert.NoError(err)
	}

	assert.False(c.needInit)
	assert.InDelta(7, c.cfg.GyrCov.AtVec(0), 1e-12)
	assert.InDelta(9, c.cfg.AccCov.AtVec(0), 1e-12)
}

func TestSetExtrinsicUpdatesInitializer(t *testing.T) {
	assert := assert.New(t)

	c, err := New(DefaultConfig())
	assert.NoError(err)

	T := mat.NewVecDense(3, []float64{0.1, 0.2, 0.3})
	c.SetExtrinsic(Extrinsic{R: manifold.IdentityQuat(), T: T})

	assert.InDelta(0.1, c.init.Extrinsic.T.AtVec(0), 1e-12)
}
