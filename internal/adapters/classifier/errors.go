package classifier

import "errors"

var (
	// ErrClassifierUnavailable is returned when no model could be loaded.
	ErrClassifierUnavailable = errors.New("pose classifier unavailable")
	// ErrModelInvalid is returned for malformed model files.
	ErrModelInvalid = errors.New("invalid pose model")
	// ErrInputShape is returned when an input vector does not match the model.
	ErrInputShape = errors.New("input does not match model shape")
)
