package utils

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoUsableInput is returned when a source is constructed on a path holding no frames of
	// its kind.
	ErrNoUsableInput = errors.New("no usable input")
	// ErrUnrecognizedInputFormat is returned when the detector cannot classify a path.
	ErrUnrecognizedInputFormat = errors.New("unrecognized input format")
	// ErrMalformedTimestamp is returned when a frame's embedded or name-derived time cannot be
	// parsed. It is recoverable: callers fall back to clock-derived time for that frame.
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	// ErrEndOfStream is returned by decoders when no more frames are available. Sources absorb
	// it and shorten the chunk.
	ErrEndOfStream = errors.New("end of stream")
	// ErrCorruptFrameData is returned for a frame whose bytes do not decode. The frame is skipped.
	ErrCorruptFrameData = errors.New("corrupt frame data")
)

// NewNoUsableInputError is used when a path yields no frames.
func NewNoUsableInputError(path, reason string) error {
	return errors.Wrapf(ErrNoUsableInput, "%q: %s", path, reason)
}

// NewUnrecognizedInputFormatError is used when no source kind matches a path.
func NewUnrecognizedInputFormatError(path string) error {
	return errors.Wrapf(ErrUnrecognizedInputFormat, "%q", path)
}

// NewMalformedTimestampError is used when a timestamp cannot be parsed from its origin.
func NewMalformedTimestampError(origin string, cause error) error {
	if cause == nil {
		return errors.Wrapf(ErrMalformedTimestamp, "%q", origin)
	}
	return errors.Wrapf(ErrMalformedTimestamp, "%q: %v", origin, cause)
}

// NewCorruptFrameDataError is used when frame bytes cannot be decoded.
func NewCorruptFrameDataError(frame int, cause error) error {
	return errors.Wrapf(ErrCorruptFrameData, "frame %d: %v", frame, cause)
}
