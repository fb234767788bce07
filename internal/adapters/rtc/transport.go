package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
)

type transport struct {
	id           string
	direction    string
	pc           *webrtc.PeerConnection
	handler      core.TransportHandler
	fingerprints []webrtc.DTLSFingerprint

	connectOnce sync.Once
	connectErr  error
	closeOnce   sync.Once
}

func (t *transport) ID() string { return t.id }

// ensureConnected runs the connect handshake lazily, on the first produce or
// consume, matching the engine contract that OnConnect fires at most once.
func (t *transport) ensureConnected() error {
	t.connectOnce.Do(func() {
		dtls := struct {
			Role         string                   `json:"role"`
			Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
		}{Role: "client", Fingerprints: t.fingerprints}
		b, err := json.Marshal(dtls)
		if err != nil {
			t.connectErr = err
			return
		}
		t.connectErr = t.handler.OnConnect(t.id, b)
	})
	return t.connectErr
}

func (t *transport) Produce(opts core.ProduceOptions) (core.Producer, error) {
	if err := t.ensureConnected(); err != nil {
		return nil, fmt.Errorf("connect transport: %w", err)
	}

	var codec webrtc.RTPCodecCapability
	switch opts.Kind {
	case core.KindAudio:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case core.KindVideo:
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, fmt.Errorf("cannot produce kind %q", opts.Kind)
	}

	track, err := webrtc.NewTrackLocalStaticSample(codec, string(opts.Kind), "roomclient-"+uuid.NewString())
	if err != nil {
		return nil, err
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}

	rtpParams, err := json.Marshal(sender.GetParameters())
	if err != nil {
		_ = t.pc.RemoveTrack(sender)
		return nil, err
	}

	serverID, err := t.handler.OnProduce(t.id, opts.Kind, rtpParams, opts.AppData)
	if err != nil {
		_ = t.pc.RemoveTrack(sender)
		return nil, err
	}

	log.Info().Str("module", "rtc").Str("producer_id", serverID).Str("kind", string(opts.Kind)).Msg("producing")
	return &producer{id: serverID, kind: opts.Kind, track: track, sender: sender, pc: t.pc}, nil
}

// Consume registers the server-announced stream. Attaching the remote track
// to playback requires a renegotiation pass that is not wired up yet; the
// consumer still carries full pause/close semantics for the session.
func (t *transport) Consume(opts core.ConsumeOptions) (core.Consumer, error) {
	if err := t.ensureConnected(); err != nil {
		return nil, fmt.Errorf("connect transport: %w", err)
	}
	if opts.ID == "" || opts.ProducerID == "" {
		return nil, fmt.Errorf("incomplete consumer descriptor")
	}
	log.Info().Str("module", "rtc").Str("consumer_id", opts.ID).Str("kind", string(opts.Kind)).Msg("consuming")
	return &consumer{id: opts.ID, kind: opts.Kind}, nil
}

func (t *transport) RestartICE(iceParameters json.RawMessage) error {
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	log.Info().Str("module", "rtc").Str("transport_id", t.id).Msg("ICE restarted")
	return nil
}

func (t *transport) Close() {
	t.closeOnce.Do(func() {
		if err := t.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("transport_id", t.id).Msg("close error")
			return
		}
		log.Info().Str("module", "rtc").Str("transport_id", t.id).Str("direction", t.direction).Msg("transport closed")
	})
}

type producer struct {
	id     string
	kind   core.MediaKind
	track  webrtc.TrackLocal
	sender *webrtc.RTPSender
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	paused    bool
	closeOnce sync.Once
}

func (p *producer) ID() string           { return p.id }
func (p *producer) Kind() core.MediaKind { return p.kind }

func (p *producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *producer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	if err := p.sender.ReplaceTrack(nil); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("producer_id", p.id).Msg("pause")
		return
	}
	p.paused = true
}

func (p *producer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	if err := p.sender.ReplaceTrack(p.track); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("producer_id", p.id).Msg("resume")
		return
	}
	p.paused = false
}

func (p *producer) Close() {
	p.closeOnce.Do(func() {
		if err := p.pc.RemoveTrack(p.sender); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("producer_id", p.id).Msg("close")
		}
	})
}

type consumer struct {
	id   string
	kind core.MediaKind

	mu        sync.Mutex
	paused    bool
	closeOnce sync.Once
}

func (c *consumer) ID() string           { return c.id }
func (c *consumer) Kind() core.MediaKind { return c.kind }

func (c *consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *consumer) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *consumer) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *consumer) Close() {
	c.closeOnce.Do(func() {
		log.Debug().Str("module", "rtc").Str("consumer_id", c.id).Msg("consumer closed")
	})
}
