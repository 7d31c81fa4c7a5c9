package simulate

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid simulation config")
	ErrUnhealthy        = errors.New("service unhealthy")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrStepTimeout      = errors.New("timed out waiting for event")
	ErrStreamClosed     = errors.New("event stream closed")
	ErrPracticeFailed   = errors.New("practice not completed")
)
