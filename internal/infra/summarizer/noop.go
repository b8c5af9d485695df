package summarizer

import (
	"context"

	"content-pipeline/internal/usecase/pipeline"
	"content-pipeline/internal/utils/text"
)

// NoOp returns the input cut to 500 runes. It is used when no provider key is
// configured.
type NoOp struct{}

var _ pipeline.Summarizer = NoOp{}

// NewNoOp creates a NoOp summarizer.
func NewNoOp() NoOp { return NoOp{} }

// Summarize implements pipeline.Summarizer.
func (NoOp) Summarize(_ context.Context, input string) (string, error) {
	if cut, truncated := text.Truncate(input, 500); truncated {
		return cut + "...", nil
	}
	return input, nil
}
