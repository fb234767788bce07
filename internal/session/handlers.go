package session

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
	"github.com/voxmesh/roomclient/internal/signaling"
)

const rejectNotConsuming = 403

func (s *Session) handleRequest(r *signaling.IncomingRequest) {
	switch r.Method {
	case signaling.MethodNewConsumer:
		s.handleNewConsumer(r)
	case signaling.MethodNewDataConsumer:
		// Data channels are not supported.
		_ = r.Reject(rejectNotConsuming, "I do not want to data consume")
	default:
		log.Warn().Str("module", "session").Str("method", r.Method).Msg("unknown server request")
		_ = r.Reject(400, fmt.Sprintf("unknown request method %q", r.Method))
	}
}

// handleNewConsumer admits a server-announced media stream. Acceptance is
// what authorizes the server to start sending, so it must happen before any
// local pause decision layered on top.
func (s *Session) handleNewConsumer(r *signaling.IncomingRequest) {
	if !s.opts.Consume {
		_ = r.Reject(rejectNotConsuming, "I do not want to consume")
		return
	}

	var d signaling.NewConsumerData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad newConsumer payload")
		_ = r.Reject(400, "malformed newConsumer data")
		return
	}

	rt := s.reg.RecvTransport()
	if rt == nil {
		_ = r.Reject(500, "no receive transport")
		return
	}

	consumer, err := rt.Consume(core.ConsumeOptions{
		ID:            d.ID,
		ProducerID:    d.ProducerID,
		Kind:          core.MediaKind(d.Kind),
		RTPParameters: d.RTPParameters,
		AppData:       d.AppData,
	})
	if err != nil {
		s.notifyErr("error creating a consumer", err)
		_ = r.Reject(500, err.Error())
		return
	}

	h := &ConsumerHolder{
		PeerID:         d.PeerID,
		Consumer:       consumer,
		Kind:           consumer.Kind(),
		RemotelyPaused: d.ProducerPaused,
	}
	s.reg.AddConsumer(h)
	s.sink.AddConsumer(core.ConsumerInfo{
		ID:     consumer.ID(),
		PeerID: d.PeerID,
		Kind:   consumer.Kind(),
		Paused: d.ProducerPaused,
	})

	if err := r.Accept(nil); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("accepting newConsumer")
	}

	if s.audioOnly && consumer.Kind() == core.KindVideo {
		s.pauseConsumer(h)
	}
}

func (s *Session) handleNotification(n signaling.Notification) {
	switch n.Method {
	case signaling.MethodNewPeer:
		var d signaling.NewPeerData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("bad newPeer payload")
			return
		}
		s.sink.AddPeer(domain.Peer{ID: d.ID, DisplayName: d.DisplayName, Device: d.Device})
		s.sink.Notify(core.Notification{
			Severity:  core.SeverityInfo,
			Text:      fmt.Sprintf("%s joined the room", d.DisplayName),
			TimeoutMs: 3000,
		})

	case signaling.MethodPeerClosed:
		var d signaling.PeerClosedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		s.sink.RemovePeer(d.PeerID)

	case signaling.MethodPeerDisplayNameChanged:
		var d signaling.PeerDisplayNameChangedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		s.sink.SetPeerDisplayName(d.PeerID, d.DisplayName)

	case signaling.MethodConsumerClosed:
		var d signaling.ConsumerClosedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		h, ok := s.reg.RemoveConsumer(d.ConsumerID)
		if !ok {
			return
		}
		h.Consumer.Close()
		s.sink.RemoveConsumer(d.ConsumerID)

	case signaling.MethodConsumerPaused:
		var d signaling.ConsumerPausedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		h, ok := s.reg.Consumer(d.ConsumerID)
		if !ok {
			return
		}
		h.RemotelyPaused = true
		h.Consumer.Pause()
		s.sink.SetConsumerPaused(d.ConsumerID, true)

	case signaling.MethodConsumerResumed:
		var d signaling.ConsumerResumedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		h, ok := s.reg.Consumer(d.ConsumerID)
		if !ok {
			return
		}
		h.RemotelyPaused = false
		if !h.LocallyPaused {
			h.Consumer.Resume()
			s.sink.SetConsumerPaused(d.ConsumerID, false)
		}

	case signaling.MethodActiveSpeaker:
		var d signaling.ActiveSpeakerData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return
		}
		s.sink.SetPeerVolume(d.PeerID, d.Volume)

	case signaling.MethodDownlinkBwe:
		log.Debug().Str("module", "session").RawJSON("data", n.Data).Msg("downlink bwe")

	default:
		log.Warn().Str("module", "session").Str("method", n.Method).Msg("unknown notification")
	}
}
