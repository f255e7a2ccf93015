// Package lio wires the Manifold Filter Kernel, IMU Initializer and
// Point Undistortion Engine behind a single Core facade: one
// MeasureGroup in, one undistorted PointCloud out.
package lio

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/cedarwing/tclio/propagate"
)

// ImuSample is one timestamped IMU reading, in seconds / SI units.
type ImuSample = propagate.ImuSample

// Point is one LiDAR return, timestamped by its millisecond offset
// from the start of the sweep it belongs to.
type Point = propagate.Point

// PointCloud is an undistorted sweep.
type PointCloud []Point

// MeasureGroup bundles one LiDAR sweep with the IMU samples
// bracketing it.
type MeasureGroup struct {
	Imu          []ImuSample
	LidarBegTime float64
	LidarEndTime float64
	Points       []Point
}

// Extrinsic is the LiDAR->IMU calibration.
type Extrinsic struct {
	R quat.Number
	T *mat.VecDense
}
