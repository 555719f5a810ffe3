/*
Package errs provides typed error values and application-level error code constants.

This file maps each error code to its message template and, where one applies,
the HTTP status the backing service answers with for that class of failure.
*/
package errs

// errorMap associates every error code with its ClientError template.
// A Status of 0 means the error never crosses the HTTP boundary.
var errorMap = map[int]ClientError{
	ErrInvalidParams:    {Code: ErrInvalidParams, Message: "invalid parameters: %s", Status: 0},
	ErrRoomNameRequired: {Code: ErrRoomNameRequired, Message: "room name is required", Status: 0},
	ErrEmptyMessage:     {Code: ErrEmptyMessage, Message: "message needs text or at least one attachment", Status: 0},

	ErrRoomNotFound:     {Code: ErrRoomNotFound, Message: "room %s not found", Status: 404},
	ErrJoinRequired:     {Code: ErrJoinRequired, Message: "not a participant of this room, explicit join required", Status: 0},
	ErrPasswordRequired: {Code: ErrPasswordRequired, Message: "room is private, password required", Status: 0},
	ErrPasswordMismatch: {Code: ErrPasswordMismatch, Message: "incorrect room password", Status: 0},
	ErrNotRoomCreator:   {Code: ErrNotRoomCreator, Message: "only the room creator may delete it", Status: 0},

	ErrNotAuthenticated: {Code: ErrNotAuthenticated, Message: "no active session", Status: 0},
	ErrCredentialExpired: {
		Code:    ErrCredentialExpired,
		Message: "access credential rejected and could not be recovered",
		Status:  401,
	},
	ErrRefreshFailed: {Code: ErrRefreshFailed, Message: "credential refresh rejected: %s", Status: 401},

	ErrTransport:     {Code: ErrTransport, Message: "transport failure: %s", Status: 0},
	ErrBackendStatus: {Code: ErrBackendStatus, Message: "backing service error: %s", Status: 0},
	ErrNotConnected:  {Code: ErrNotConnected, Message: "realtime connection is not established", Status: 0},

	ErrUnknown: {Code: ErrUnknown, Message: "internal client error", Status: 0},
}
