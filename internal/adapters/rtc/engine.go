// Package rtc binds the abstract media engine surface to pion/webrtc.
// One PeerConnection backs each negotiated transport.
package rtc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
)

var (
	ErrAlreadyLoaded = errors.New("device already loaded")
	ErrNotLoaded     = errors.New("device not loaded")
)

// Engine implements core.Device. Load is one-shot: router capabilities are
// immutable for the lifetime of the device.
type Engine struct {
	mu     sync.Mutex
	caps   json.RawMessage
	cert   *webrtc.Certificate
	loaded bool
}

func NewEngine() (*Engine, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, err
	}
	return &Engine{cert: cert}, nil
}

func (e *Engine) Load(routerRtpCapabilities json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return ErrAlreadyLoaded
	}
	if len(routerRtpCapabilities) == 0 {
		return errors.New("empty router capabilities")
	}
	e.caps = routerRtpCapabilities
	e.loaded = true
	log.Info().Str("module", "rtc").Int("caps_bytes", len(routerRtpCapabilities)).Msg("device loaded")
	return nil
}

func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) CanProduce(kind core.MediaKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return false
	}
	return kind == core.KindAudio || kind == core.KindVideo
}

func (e *Engine) RTPCapabilities() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caps
}

func (e *Engine) CreateSendTransport(opts core.TransportOptions, h core.TransportHandler) (core.Transport, error) {
	return e.newTransport(opts, h, "send")
}

func (e *Engine) CreateRecvTransport(opts core.TransportOptions, h core.TransportHandler) (core.Transport, error) {
	return e.newTransport(opts, h, "recv")
}

func (e *Engine) newTransport(opts core.TransportOptions, h core.TransportHandler, direction string) (core.Transport, error) {
	if !e.Loaded() {
		return nil, ErrNotLoaded
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:   opts.ICEServers,
		Certificates: []webrtc.Certificate{*e.cert},
	})
	if err != nil {
		return nil, err
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("transport_id", opts.ID).Str("direction", direction).
			Str("ice_state", s.String()).Msg("ICE state")
	})

	fps, err := e.cert.GetFingerprints()
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	t := &transport{
		id:           opts.ID,
		direction:    direction,
		pc:           pc,
		handler:      h,
		fingerprints: fps,
	}
	log.Info().Str("module", "rtc").Str("transport_id", opts.ID).Str("direction", direction).Msg("transport created")
	return t, nil
}
