/*
Package errs provides typed error values and application-level error code constants.

These codes classify every failure the client core can surface, so callers can
branch on the class of a failure (user-correctable, credential-related,
transport) without inspecting message strings.
*/
package errs

// 1xxx: Validation Errors (rejected before any network call)
const (
	// ErrInvalidParams indicates a malformed or missing request parameter.
	ErrInvalidParams = 1001

	// ErrRoomNameRequired indicates a room-creation request with an empty name.
	ErrRoomNameRequired = 1002

	// ErrEmptyMessage indicates a message send with neither text nor attachments.
	ErrEmptyMessage = 1003
)

// 2xxx: Room Access Errors (user-correctable)
const (
	// ErrRoomNotFound indicates the requested room does not exist on the backing service.
	ErrRoomNotFound = 2101

	// ErrJoinRequired indicates the current identity is not a participant of the
	// room and explicit consent is needed before joining.
	ErrJoinRequired = 2102

	// ErrPasswordRequired indicates a private room was opened without supplying a password.
	ErrPasswordRequired = 2103

	// ErrPasswordMismatch indicates the supplied room password did not match the room secret.
	ErrPasswordMismatch = 2104

	// ErrNotRoomCreator indicates a room-deletion attempt by an identity that did not create it.
	ErrNotRoomCreator = 2105
)

// 3xxx: Credential Errors
const (
	// ErrNotAuthenticated indicates an operation that needs an identity was
	// invoked with no active session.
	ErrNotAuthenticated = 3001

	// ErrCredentialExpired indicates the backing service rejected the access
	// credential and recovery was not possible (no refresh credential, or the
	// retried request was rejected again).
	ErrCredentialExpired = 3002

	// ErrRefreshFailed indicates the refresh endpoint rejected the refresh
	// credential. Terminal: the session is logged out.
	ErrRefreshFailed = 3003
)

// 4xxx: Transport Errors
const (
	// ErrTransport indicates a network-level failure (dial, timeout, dropped connection).
	ErrTransport = 4001

	// ErrBackendStatus indicates the backing service answered with a non-success
	// status that carries no more specific classification.
	ErrBackendStatus = 4002

	// ErrNotConnected indicates a realtime operation on a connection that is not established.
	ErrNotConnected = 4003
)

// 5xxx: Internal Errors
const (
	// ErrUnknown represents an unclassified internal failure.
	ErrUnknown = 5000
)
