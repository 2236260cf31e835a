package transport

import "errors"

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrNotConnected is returned by Send and Disconnect for a peer with no
	// connection.
	ErrNotConnected = errors.New("peer not connected")

	// ErrUnknownPeer is returned by Invite for a peer that has not been
	// discovered.
	ErrUnknownPeer = errors.New("unknown peer")
)
