package core

// Frame is a raw signaling payload.
type Frame []byte

// TransportEventKind describes a lifecycle change of the message transport.
type TransportEventKind int

const (
	TransportOpen TransportEventKind = iota
	TransportFailed
	TransportDisconnected
	TransportClosed
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportOpen:
		return "open"
	case TransportFailed:
		return "failed"
	case TransportDisconnected:
		return "disconnected"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

type TransportEvent struct {
	Kind TransportEventKind
	Err  error
}

// MsgTransport abstracts a bidirectional message channel to the session server.
// Owned by the adapter; the adapter must Close() it. Incoming and Events are
// closed after the Closed event has been delivered.
type MsgTransport interface {
	Send(Frame) error
	Incoming() <-chan Frame
	Events() <-chan TransportEvent
	Close()
}
