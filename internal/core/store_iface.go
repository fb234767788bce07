package core

import "github.com/voxmesh/roomclient/internal/domain"

// RoomState is the session connection lifecycle. Closed is terminal.
type RoomState string

const (
	RoomNew        RoomState = "new"
	RoomConnecting RoomState = "connecting"
	RoomConnected  RoomState = "connected"
	RoomClosed     RoomState = "closed"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is a transient user-visible message.
type Notification struct {
	Severity  Severity `json:"severity"`
	Text      string   `json:"text"`
	TimeoutMs int      `json:"timeoutMs,omitempty"`
}

// ProducerInfo is a read-only view of a local producer for the UI.
type ProducerInfo struct {
	ID     string    `json:"id"`
	Kind   MediaKind `json:"kind"`
	Paused bool      `json:"paused"`
}

// ConsumerInfo is a read-only view of a remote consumer for the UI.
type ConsumerInfo struct {
	ID     string        `json:"id"`
	PeerID domain.PeerID `json:"peerId"`
	Kind   MediaKind     `json:"kind"`
	Paused bool          `json:"paused"`
}

// StoreSink receives state-change notifications for the UI store.
// Implementations must be safe to call from any goroutine; scalar fields are
// last-write-wins, notifications are append-only.
type StoreSink interface {
	SetRoomState(s RoomState)
	Notify(n Notification)

	AddPeer(p domain.Peer)
	RemovePeer(id domain.PeerID)
	SetPeerDisplayName(id domain.PeerID, name string)
	SetPeerVolume(id domain.PeerID, volume int)

	AddProducer(p ProducerInfo)
	RemoveProducer(id string)
	SetProducerPaused(id string, paused bool)

	AddConsumer(c ConsumerInfo)
	RemoveConsumer(id string)
	SetConsumerPaused(id string, paused bool)

	SetMediaCapabilities(canSendMic, canSendCam bool)
	SetDisplayName(name string)
	SetAudioOnly(enabled bool)
	SetAudioOnlyInProgress(inProgress bool)
	SetCamInProgress(inProgress bool)
	SetRestartICEInProgress(inProgress bool)
}
