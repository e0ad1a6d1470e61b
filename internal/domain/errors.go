package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProvider marks a transient provider failure; callers retry it.
	ErrProvider = errors.New("provider failure")
	// ErrMalformedResponse marks provider output that does not match the expected shape.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrNoImageInResponse is returned when an image call yields no image part.
	ErrNoImageInResponse = errors.New("no image in provider response")

	ErrJobPanicked               = errors.New("generation job panicked")
	ErrStructureGenerationFailed = errors.New("story structure generation failed")
	ErrAllImagesFailed           = errors.New("image generation failed")
)
