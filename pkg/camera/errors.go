package camera

import "errors"

var (
	// ErrDeviceUnavailable - device missing, busy or failed to open
	ErrDeviceUnavailable = errors.New("camera: device unavailable")
	// ErrNoCandidates - device reported no usable resolutions
	ErrNoCandidates = errors.New("camera: no candidate resolutions")
	// ErrStaleBuffer - buffer callback after teardown or reconfigure, never returned to callers
	ErrStaleBuffer = errors.New("camera: stale buffer")
	// ErrInvalidState - operation not allowed in current session state
	ErrInvalidState = errors.New("camera: invalid state")
)
