package client

import "errors"

// ErrClosed is returned after Close; a closed client never reconnects.
var ErrClosed = errors.New("client closed")

// ErrNotConnected is returned by Send while the transport is down.
// Commands are never queued across a reconnect boundary.
var ErrNotConnected = errors.New("not connected")

// ErrSendBufferFull is returned when the outbound buffer is saturated.
var ErrSendBufferFull = errors.New("send buffer full")
