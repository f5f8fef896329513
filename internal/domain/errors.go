package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyRunning indicates a discussion is already in progress
	ErrAlreadyRunning = errors.New("roundtable discussion already running")
	// ErrNoMessages indicates there is nothing to save
	ErrNoMessages = errors.New("no messages to save")
)
