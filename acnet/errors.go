package acnet

import "errors"

var (
	// ErrUnknownParameter is returned when a weight file names a parameter the model does not have.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrShapeMismatch is returned when tensor shapes are incompatible.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnsupportedScale is returned for scale factors without an upsampling layout.
	ErrUnsupportedScale = errors.New("unsupported scale factor")
	// ErrUnsupportedFormat is returned for weight files or dtypes that cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported weight format")
)
