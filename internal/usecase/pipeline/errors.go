package pipeline

import "errors"

var (
	// ErrCriticalStageFailed is returned by Run when a critical stage fails
	// and the rest of the run is skipped. It wraps the stage's error.
	ErrCriticalStageFailed = errors.New("critical stage failed")

	// ErrUnknownStage is returned when a dead letter job names a stage the
	// orchestrator does not run.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNoInput is returned by a stage whose upstream produced nothing usable.
	ErrNoInput = errors.New("no input from upstream stage")

	// ErrAllFeedsFailed is returned by the scout stage when no feed could be read.
	ErrAllFeedsFailed = errors.New("all feeds failed")
)
