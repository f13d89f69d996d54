package directory

import "errors"

var (
	ErrNotFound     = errors.New("directory: not found")
	ErrForbidden    = errors.New("directory: forbidden")
	ErrConflict     = errors.New("directory: resource conflict")
	ErrInvalidInput = errors.New("directory: invalid input")
)
