package services

import "errors"

var (
	ErrUnknownHandle     = errors.New("unknown transfer handle")
	ErrStorage           = errors.New("storage error")
	ErrArchiveParse      = errors.New("archive parse error")
	ErrExternalService   = errors.New("external service error")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrImportInFlight    = errors.New("import already running for record")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("raster record not found")
)
