package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by Send when no socket is open. Nothing is delivered.
	ErrNotOpen = errors.New("transport: socket not open")
	// ErrSendBufferFull is returned when the outbound queue cannot take another frame.
	ErrSendBufferFull = errors.New("transport: send buffer full")
	// ErrClosed is returned by a connect that lost a race with Close.
	ErrClosed = errors.New("transport: client closed")
	// ErrReconnectPending wraps a failed first dial that the reconnect policy
	// keeps retrying in the background.
	ErrReconnectPending = errors.New("transport: reconnect pending")
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type OpenEvent struct {
	SessionID string
	Reconnect bool
}

type MessageEvent struct {
	SessionID string
	Data      []byte
}

type CloseEvent struct {
	SessionID   string
	Code        int
	Reason      string
	Intentional bool
}

type ErrorEvent struct {
	SessionID string
	Err       error
}
