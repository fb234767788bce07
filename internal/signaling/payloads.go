package signaling

import (
	"encoding/json"

	"github.com/voxmesh/roomclient/internal/domain"
)

// RPC method names understood by the session server.
const (
	MethodGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	MethodJoin                     = "join"
	MethodCreateWebRtcTransport    = "createWebRtcTransport"
	MethodConnectWebRtcTransport   = "connectWebRtcTransport"
	MethodRestartICE               = "restartIce"
	MethodProduce                  = "produce"
	MethodCloseProducer            = "closeProducer"
	MethodPauseProducer            = "pauseProducer"
	MethodResumeProducer           = "resumeProducer"
	MethodPauseConsumer            = "pauseConsumer"
	MethodResumeConsumer           = "resumeConsumer"
	MethodRequestConsumerKeyFrame  = "requestConsumerKeyFrame"
	MethodChangeDisplayName        = "changeDisplayName"
)

// Server-pushed methods.
const (
	MethodNewConsumer            = "newConsumer"
	MethodNewDataConsumer        = "newDataConsumer"
	MethodNewPeer                = "newPeer"
	MethodPeerClosed             = "peerClosed"
	MethodPeerDisplayNameChanged = "peerDisplayNameChanged"
	MethodConsumerClosed         = "consumerClosed"
	MethodConsumerPaused         = "consumerPaused"
	MethodConsumerResumed        = "consumerResumed"
	MethodActiveSpeaker          = "activeSpeaker"
	MethodDownlinkBwe            = "downlinkBwe"
)

type CreateTransportRequest struct {
	ForceTCP  bool `json:"forceTcp"`
	Producing bool `json:"producing"`
	Consuming bool `json:"consuming"`
}

type CreateTransportResponse struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

type ConnectTransportRequest struct {
	TransportID    string          `json:"transportId"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

type RestartICERequest struct {
	TransportID string `json:"transportId"`
}

type RestartICEResponse struct {
	ICEParameters json.RawMessage `json:"iceParameters"`
}

type JoinRequest struct {
	DisplayName     string            `json:"displayName"`
	Device          domain.DeviceInfo `json:"device"`
	RTPCapabilities json.RawMessage   `json:"rtpCapabilities,omitempty"`
}

type JoinResponse struct {
	Peers []domain.Peer `json:"peers"`
}

type ProduceRequest struct {
	TransportID   string          `json:"transportId"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
	AppData       map[string]any  `json:"appData,omitempty"`
}

type ProduceResponse struct {
	ID string `json:"id"`
}

type ProducerRequest struct {
	ProducerID string `json:"producerId"`
}

type ConsumerRequest struct {
	ConsumerID string `json:"consumerId"`
}

type ChangeDisplayNameRequest struct {
	DisplayName string `json:"displayName"`
}

// NewConsumerData is the payload of a newConsumer server request.
type NewConsumerData struct {
	PeerID         domain.PeerID   `json:"peerId"`
	ProducerID     string          `json:"producerId"`
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	RTPParameters  json.RawMessage `json:"rtpParameters"`
	Type           string          `json:"type"`
	AppData        map[string]any  `json:"appData,omitempty"`
	ProducerPaused bool            `json:"producerPaused"`
}

type NewPeerData struct {
	ID          domain.PeerID     `json:"id"`
	DisplayName string            `json:"displayName"`
	Device      domain.DeviceInfo `json:"device"`
}

type PeerClosedData struct {
	PeerID domain.PeerID `json:"peerId"`
}

type PeerDisplayNameChangedData struct {
	PeerID      domain.PeerID `json:"peerId"`
	DisplayName string        `json:"displayName"`
}

type ConsumerClosedData struct {
	ConsumerID string `json:"consumerId"`
}

type ConsumerPausedData struct {
	ConsumerID string `json:"consumerId"`
}

type ConsumerResumedData struct {
	ConsumerID string `json:"consumerId"`
}

type ActiveSpeakerData struct {
	PeerID domain.PeerID `json:"peerId"`
	Volume int           `json:"volume"`
}
