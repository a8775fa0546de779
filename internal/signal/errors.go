package signal

import "errors"

var (
	// ErrRoomNotFound refuses a signaling connection to a room that does not
	// exist in the store.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotAuthorized rejects a mute/unmute request from a non-admin.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrTargetNotFound rejects a mute/unmute request whose target is no
	// longer a room member.
	ErrTargetNotFound = errors.New("target not found")

	// ErrConnClosed reports a send on an already closed connection handle.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull reports a consumer that cannot keep up with the room.
	ErrSendBufferFull = errors.New("send buffer full")
)
