package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// StageError locates a failure raised while pulling from a stage: the
// function that produced the stream, its document path and the zero-based
// position of the element being produced.
type StageError struct {
	Function string
	Path     string
	Index    int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s at %s, element %d: %v", e.Function, e.Path, e.Index, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage labels the errors of src with the producing function and path.
// Errors already labelled by an inner stage pass through unchanged, so the
// innermost failing stage is reported.
func Stage(function, path string, src Stream) Stream {
	index := 0
	return StreamFunc(func(ctx context.Context) (any, error) {
		item, err := src.Next(ctx)
		switch {
		case err == nil:
			index++
			return item, nil
		case errors.Is(err, Done):
			return nil, err
		}
		var stageErr *StageError
		if errors.As(err, &stageErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &StageError{Function: function, Path: path, Index: index, Err: err}
	})
}
