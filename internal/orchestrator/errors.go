package orchestrator

import "errors"

var (
	// ErrNotRegistered is returned for operations on an adapter name the coordinator does not know.
	ErrNotRegistered = errors.New("adapter not registered")

	// ErrZoneNotFound is returned when a command targets an unknown zone.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrCommandNotAllowed is returned when a zone's capability flags reject a command.
	ErrCommandNotAllowed = errors.New("command not allowed for zone")

	// ErrUnknownAdapter is returned when no adapter logic is registered for a zone's prefix.
	ErrUnknownAdapter = errors.New("no adapter handles zone prefix")
)
