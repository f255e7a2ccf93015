package initializer

import "errors"

// ErrDegenerate is returned by Accumulate when the running mean
// specific force is too small to fix a gravity direction — the
// platform is in free fall or the IMU feed is garbage.
var ErrDegenerate = errors.New("initializer: degenerate mean specific force")
