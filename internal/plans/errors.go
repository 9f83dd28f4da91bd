package plans

import "errors"

var (
	// ErrNotDocument indicates a source value that is not a mapping.
	ErrNotDocument = errors.New("plan document is not a mapping")
	// ErrInvalidDate indicates a creation date that could not be parsed.
	ErrInvalidDate = errors.New("invalid creation date")
	// ErrMissingDate indicates a document without a creation date.
	ErrMissingDate = errors.New("missing creation date")
	// ErrInvalidOption indicates an unknown service key or cost path setting.
	ErrInvalidOption = errors.New("invalid mapping option")
)
