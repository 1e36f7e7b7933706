package session

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches the ID
	ErrRoomNotFound = errors.New("session: room not found")

	// ErrRoomEnded is returned when an operation targets a finished room
	ErrRoomEnded = errors.New("session: room already ended")

	// ErrInvalidConnectionType is returned when the requested type is not
	// chat or video
	ErrInvalidConnectionType = errors.New("session: connection type must be chat or video")

	// ErrInvalidRequestState is returned when a room is requested for an
	// escalation that is not accepted
	ErrInvalidRequestState = errors.New("session: escalation request is not accepted")
)
