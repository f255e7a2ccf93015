// Command lio-replay synthesizes a ground-truth trajectory, feeds
// noisy IMU samples and a synthetic two-point LiDAR sweep every
// 1/sweepHz seconds through lio.Core, and plots the true,
// dead-reckoned and filtered paths.
package main

import (
	"fmt"
	"log"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"github.com/cedarwing/tclio/lio"
	"github.com/cedarwing/tclio/noise"
)

const (
	imuHz        = 200.0
	sweepHz      = 10.0
	initSeconds  = 0.1 // 20 stationary samples before motion starts
	motionSteps  = 40
	yawRateRad   = 0.5 // rad/s, constant yaw
	gravityMag   = 9.81
)

func main() {
	accNoiseCov := mat.NewSymDense(3, []float64{0.01, 0, 0, 0, 0.01, 0, 0, 0, 0.01})
	gyrNoiseCov := mat.NewSymDense(3, []float64{0.0004, 0, 0, 0, 0.0004, 0, 0, 0, 0.0004})

	accNoise, err := noise.NewGaussian([]float64{0, 0, 0}, accNoiseCov)
	if err != nil {
		log.Fatalf("failed to create accel noise: %v", err)
	}
	gyrNoise, err := noise.NewGaussian([]float64{0, 0, 0}, gyrNoiseCov)
	if err != nil {
		log.Fatalf("failed to create gyro noise: %v", err)
	}

	cfg := lio.DefaultConfig()
	core, err := lio.New(cfg)
	if err != nil {
		log.Fatalf("failed to create lio core: %v", err)
	}

	dt := 1.0 / imuHz
	sweepDt := 1.0 / sweepHz
	steps := int(initSeconds*imuHz) + motionSteps

	truth := mat.NewDense(steps, 2, nil)
	deadReck := mat.NewDense(steps, 2, nil)
	filtered := mat.NewDense(steps, 2, nil)

	var (
		truthYaw, truthX, truthY float64
		drYaw, drX, drY          float64
	)

	t := 0.0
	var imuBatch []lio.ImuSample
	sweepStart := 0.0

	for i := 0; i < steps; i++ {
		yawRate := 0.0
		if i >= int(initSeconds*imuHz) {
			yawRate = yawRateRad
		}

		// pure in-place yaw scenario: truth/dead-reckoned position stays
		// at the origin, only yaw accumulates.
		truthYaw += yawRate * dt

		accTrue := mat.NewVecDense(3, []float64{0, 0, -gravityMag})
		gyrTrue := mat.NewVecDense(3, []float64{0, 0, yawRate})

		accMeas := mat.NewVecDense(3, nil)
		accMeas.AddVec(accTrue, accNoise.Sample())
		gyrMeas := mat.NewVecDense(3, nil)
		gyrMeas.AddVec(gyrTrue, gyrNoise.Sample())

		drYaw += gyrMeas.AtVec(2) * dt

		truth.Set(i, 0, truthX)
		truth.Set(i, 1, truthY)
		deadReck.Set(i, 0, drX)
		deadReck.Set(i, 1, drY)

		imuBatch = append(imuBatch, lio.ImuSample{Time: t, Acc: accMeas, Gyro: gyrMeas})

		if t-sweepStart >= sweepDt || i == steps-1 {
			mg := lio.MeasureGroup{
				Imu:          imuBatch,
				LidarBegTime: sweepStart,
				LidarEndTime: t,
				Points: []lio.Point{
					{OffsetMs: 0, X: 1, Y: 0, Z: 0},
					{OffsetMs: sweepDt * 1000 / 2, X: 0, Y: 1, Z: 0},
				},
			}

			pts, err := core.Process(mg)
			if err != nil {
				log.Printf("process error at step %d: %v", i, err)
			} else if pts != nil {
				fmt.Printf("sweep ending t=%.3f: %d points undistorted\n", t, len(pts))
			}

			imuBatch = nil
			sweepStart = t
		}

		pos := core.Position()
		filtered.Set(i, 0, pos.AtVec(0))
		filtered.Set(i, 1, pos.AtVec(1))

		t += dt
	}

	fmt.Println("final dead-reckoned yaw (rad):", matrix.Format(mat.NewVecDense(1, []float64{drYaw})))
	fmt.Println("final truth yaw (rad):", matrix.Format(mat.NewVecDense(1, []float64{truthYaw})))

	plt, err := newTrajectoryPlot(truth, deadReck, filtered)
	if err != nil {
		log.Fatalf("failed to build plot: %v", err)
	}

	name := "lio-replay.png"
	if err := plt.Save(10*vg.Inch, 10*vg.Inch, name); err != nil {
		log.Fatalf("failed to save plot to %s: %v", name, err)
	}
}
