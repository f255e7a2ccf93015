package lio

import "errors"

// ErrPrecondition is returned when Process is called with malformed
// input it cannot service: a non-finite (NaN) timestamp, or
// lidar_end_time preceding lidar_beg_time. An empty IMU batch is a
// TransientSkip, not a PreconditionViolation; see Core.Process.
var ErrPrecondition = errors.New("lio: precondition violated")

// ErrNumericalDegeneracy is returned when the kernel's covariance
// propagation produces a non-finite entry, or the initializer's mean
// specific force collapses to zero.
var ErrNumericalDegeneracy = errors.New("lio: numerical degeneracy")
