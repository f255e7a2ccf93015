// Package propagate implements the Point Undistortion Engine (PUE):
// a forward midpoint-integration pass across the IMU samples bracketing
// one LiDAR sweep, followed by a backward two-cursor pass that
// re-expresses every point in the sweep-end frame.
package propagate

import "gonum.org/v1/gonum/mat"

// ImuSample is one timestamped IMU reading.
type ImuSample struct {
	Time float64
	Acc  *mat.VecDense // specific force, m/s^2
	Gyro *mat.VecDense // angular velocity, rad/s
}

// Point is one LiDAR return, timestamped by its millisecond offset
// from the start of the sweep it belongs to (converted to seconds
// internally to match the IMU/waypoint time base).
type Point struct {
	OffsetMs float64
	X, Y, Z  float64
}

// MeasureGroup bundles one LiDAR sweep with the IMU samples that
// bracket it.
type MeasureGroup struct {
	Imu          []ImuSample
	LidarBegTime float64
	LidarEndTime float64
	Points       []Point
}

// waypoint is one entry of the cached forward-pass trajectory (the
// reference's IMUpose / set_pose6d).
type waypoint struct {
	offsetTime float64
	acc        *mat.VecDense // world-frame acceleration including gravity
	gyro       *mat.VecDense // bias-corrected angular velocity
	vel        *mat.VecDense
	pos        *mat.VecDense
	rot        *mat.Dense // 3x3 rotation matrix, IMU->world
}
