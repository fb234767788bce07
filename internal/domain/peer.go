// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type PeerID string

// Peer is a remote room participant as reported by the server.
type Peer struct {
	ID          PeerID     `json:"id"`
	DisplayName string     `json:"displayName"`
	Device      DeviceInfo `json:"device"`
}

// DeviceInfo identifies the client software behind a peer.
type DeviceInfo struct {
	Flag    string `json:"flag"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// NewPeerID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
