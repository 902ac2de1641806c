package prediction

import (
	"errors"
	"fmt"
)

// ErrNonFinite is wrapped in a PredictionError when a model returns NaN or ±Inf.
var ErrNonFinite = errors.New("model returned a non-finite value")

const msgInvalidModel = "Please select a valid, available model."

// SelectionError means the requested model is empty or not loaded.
type SelectionError struct {
	Name string
}

func (e *SelectionError) Error() string {
	return msgInvalidModel
}

// PredictionError wraps any failure raised by an opaque predictor.
type PredictionError struct {
	Model string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("An error occurred: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
