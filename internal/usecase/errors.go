package usecase

import "errors"

var (
	ErrNoActiveRecording = errors.New("no active recording")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSessionFinished   = errors.New("all exercises completed")
	ErrExercisesLoaded   = errors.New("exercises already loaded")
	ErrEmptyRecording    = errors.New("no audio captured")
	ErrAttemptDiscarded  = errors.New("attempt discarded")
	ErrNoActiveStream    = errors.New("no active physio stream")
	ErrMissingUserID     = errors.New("no user id configured")
	ErrControllerClosed  = errors.New("session controller closed")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrInvalidContact    = errors.New("invalid contact message")
)
