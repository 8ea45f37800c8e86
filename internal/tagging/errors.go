package tagging

import "errors"

var (
	// ErrExtractionFailed indicates no usable content could be pulled from the file.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrTaggingFailed indicates the model call failed or produced no tags.
	ErrTaggingFailed = errors.New("tagging failed")
)
