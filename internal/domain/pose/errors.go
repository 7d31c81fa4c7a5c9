package pose

import "errors"

var (
	ErrUnknownPose  = errors.New("unknown pose")
	ErrUnknownScene = errors.New("unknown scene")
)
