// Package signaling implements the protoo request/response/notification
// protocol over an abstract message transport.
package signaling

import (
	"encoding/json"
	"errors"

	"github.com/voxmesh/roomclient/internal/core"
)

var ErrBadMessage = errors.New("malformed signaling message")

// Message is the protoo wire envelope. Exactly one of Request, Response or
// Notification is set.
type Message struct {
	Request      bool            `json:"request,omitempty"`
	Response     bool            `json:"response,omitempty"`
	Notification bool            `json:"notification,omitempty"`
	ID           int64           `json:"id,omitempty"`
	Method       string          `json:"method,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	OK           bool            `json:"ok,omitempty"`
	ErrorCode    int             `json:"errorCode,omitempty"`
	ErrorReason  string          `json:"errorReason,omitempty"`
}

func ParseMessage(f core.Frame) (*Message, error) {
	var m Message
	if err := json.Unmarshal(f, &m); err != nil {
		return nil, errors.Join(ErrBadMessage, err)
	}
	if !m.Request && !m.Response && !m.Notification {
		return nil, ErrBadMessage
	}
	if (m.Request || m.Response) && m.ID == 0 {
		return nil, ErrBadMessage
	}
	return &m, nil
}

func NewRequest(id int64, method string, data json.RawMessage) *Message {
	return &Message{Request: true, ID: id, Method: method, Data: data}
}

func NewResponse(req *Message, data json.RawMessage) *Message {
	return &Message{Response: true, ID: req.ID, OK: true, Data: data}
}

func NewRejection(req *Message, code int, reason string) *Message {
	return &Message{Response: true, ID: req.ID, ErrorCode: code, ErrorReason: reason}
}

func NewNotification(method string, data json.RawMessage) *Message {
	return &Message{Notification: true, Method: method, Data: data}
}

func (m *Message) Encode() (core.Frame, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
