package services

import "errors"

var (
	// ErrConfigResolution indicates tenant or target configuration could not be loaded.
	ErrConfigResolution = errors.New("config resolution failed")

	// ErrConfigInvalid indicates a configuration record is missing required fields.
	ErrConfigInvalid = errors.New("config invalid")
)
