package eskf

import "errors"

var (
	// ErrNotInitialized is returned when the filter API is used before Initialize
	ErrNotInitialized = errors.New("filter not initialized")
	// ErrOutlierRejected is returned when a measurement fails the chi-square gate
	ErrOutlierRejected = errors.New("measurement rejected by outlier gate")
	// ErrNumericFailure is returned when the innovation covariance is not positive definite
	ErrNumericFailure = errors.New("numerical failure in covariance update")
	// ErrOutOfCapacity is returned when the buffer is full and the oldest entry is protected
	ErrOutOfCapacity = errors.New("buffer out of capacity")
	// ErrUnknownSensor is returned for measurements from a sensor not registered with the filter
	ErrUnknownSensor = errors.New("unknown sensor handle")
)
