package service

import "errors"

// Sentinel errors surfaced to the API layer.
var (
	ErrJobNotFound         = errors.New("job not found")
	ErrJobNotCompleted     = errors.New("job not completed")
	ErrJobAlreadyTerminal  = errors.New("job already in a terminal state")
	ErrInvalidSourceURL    = errors.New("invalid source url")
	ErrUnsupportedLanguage = errors.New("unsupported target language")
	ErrQuotaExceeded       = errors.New("daily job quota exceeded")
)
