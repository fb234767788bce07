package core

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// TransportOptions carries the server-negotiated transport descriptor.
type TransportOptions struct {
	ID             string
	ICEParameters  json.RawMessage
	ICECandidates  json.RawMessage
	DTLSParameters json.RawMessage
	ICEServers     []webrtc.ICEServer
}

// TransportHandler answers the media engine's signaling needs during
// transport bring-up. Both calls happen synchronously inside
// Produce/Consume on the session worker.
type TransportHandler interface {
	// OnConnect delivers local DTLS parameters that must reach the server
	// before media can flow.
	OnConnect(transportID string, dtlsParameters json.RawMessage) error
	// OnProduce announces a new local producer and returns its server id.
	OnProduce(transportID string, kind MediaKind, rtpParameters json.RawMessage, appData map[string]any) (string, error)
}

type ProduceOptions struct {
	Kind         MediaKind
	Encodings    json.RawMessage
	CodecOptions json.RawMessage
	AppData      map[string]any
}

type ConsumeOptions struct {
	ID            string
	ProducerID    string
	Kind          MediaKind
	RTPParameters json.RawMessage
	AppData       map[string]any
}

// Device is the capability surface of the media engine. Load is one-shot;
// capabilities are immutable afterwards.
type Device interface {
	Load(routerRtpCapabilities json.RawMessage) error
	Loaded() bool
	CanProduce(kind MediaKind) bool
	RTPCapabilities() json.RawMessage
	CreateSendTransport(opts TransportOptions, h TransportHandler) (Transport, error)
	CreateRecvTransport(opts TransportOptions, h TransportHandler) (Transport, error)
}

// Transport is a negotiated media-carrying connection. Close must be
// idempotent; the session may call it during both disconnect and teardown.
type Transport interface {
	ID() string
	Produce(opts ProduceOptions) (Producer, error)
	Consume(opts ConsumeOptions) (Consumer, error)
	RestartICE(iceParameters json.RawMessage) error
	Close()
}

// Producer is a locally originated media stream.
type Producer interface {
	ID() string
	Kind() MediaKind
	Paused() bool
	Pause()
	Resume()
	Close()
}

// Consumer is a remotely originated media stream.
type Consumer interface {
	ID() string
	Kind() MediaKind
	Paused() bool
	Pause()
	Resume()
	Close()
}
