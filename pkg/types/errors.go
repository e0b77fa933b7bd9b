package types

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle operation is not
	// legal from the current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConfigValidation is returned when a mapping table or session
	// document fails validation. Nothing is applied.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrNotConnected is returned immediately when a send is attempted on
	// a handler that is not in the connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrChannelClosed is returned when pushing to or waiting on a channel
	// primitive that has been closed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrSchemaVersion is returned when a persisted session document has
	// an unknown schema version. The running configuration is untouched.
	ErrSchemaVersion = errors.New("unknown session schema version")

	// ErrDeviceDisconnected is the terminal error the input collector
	// reports when the gamepad goes away.
	ErrDeviceDisconnected = errors.New("device disconnected")

	// ErrSessionNotFound is returned when loading or deleting a named
	// session that does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
)
