package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
	"github.com/voxmesh/roomclient/internal/signaling"
)

// Opus settings requested for the microphone producer.
var micCodecOptions = json.RawMessage(`{"opusStereo":true,"opusDtx":true}`)

// Simulcast layers for the camera producer.
var camEncodings = json.RawMessage(`[{"maxBitrate":100000},{"maxBitrate":300000},{"maxBitrate":900000}]`)

// Public command surface. Everything is fire-and-forget: enqueue and return.

func (s *Session) EnableMic()  { s.post("enableMic", s.enableMic) }
func (s *Session) DisableMic() { s.post("disableMic", s.disableMic) }
func (s *Session) MuteMic()    { s.post("muteMic", s.muteMic) }
func (s *Session) UnmuteMic()  { s.post("unmuteMic", s.unmuteMic) }

// The in-progress flags are set and cleared inside the posted closure: a
// command dropped after close must not leave a flag stuck.

func (s *Session) EnableCam() {
	s.post("enableCam", func() {
		s.sink.SetCamInProgress(true)
		defer s.sink.SetCamInProgress(false)
		s.enableCam()
	})
}

func (s *Session) DisableCam() {
	s.post("disableCam", func() {
		s.sink.SetCamInProgress(true)
		defer s.sink.SetCamInProgress(false)
		s.disableCam()
	})
}

func (s *Session) EnableAudioOnly() {
	s.post("enableAudioOnly", func() {
		s.sink.SetAudioOnlyInProgress(true)
		defer s.sink.SetAudioOnlyInProgress(false)
		s.enableAudioOnly()
	})
}

func (s *Session) DisableAudioOnly() {
	s.post("disableAudioOnly", func() {
		s.sink.SetAudioOnlyInProgress(true)
		defer s.sink.SetAudioOnlyInProgress(false)
		s.disableAudioOnly()
	})
}

func (s *Session) RestartICE() { s.post("restartIce", s.restartICE) }

func (s *Session) ChangeDisplayName(name string) {
	s.post("changeDisplayName", func() { s.changeDisplayName(name) })
}

// skip logs a precondition miss. Preconditions are transient during startup
// races, so a miss aborts the single command silently instead of erroring.
func (s *Session) skip(command, reason string) {
	log.Debug().Str("module", "session").Str("command", command).Str("reason", reason).Msg("precondition skip")
}

func (s *Session) notifyErr(text string, err error) {
	log.Error().Err(err).Str("module", "session").Msg(text)
	s.sink.Notify(core.Notification{
		Severity: core.SeverityError,
		Text:     fmt.Sprintf("%s: %v", text, err),
	})
}

func (s *Session) enableMic() {
	if s.reg.MicProducer() != nil {
		return
	}
	if !s.device.Loaded() {
		s.skip("enableMic", "device not loaded")
		return
	}
	if !s.device.CanProduce(core.KindAudio) {
		s.skip("enableMic", "cannot produce audio")
		return
	}
	st := s.reg.SendTransport()
	if st == nil {
		s.skip("enableMic", "no send transport")
		return
	}

	producer, err := st.Produce(core.ProduceOptions{
		Kind:         core.KindAudio,
		CodecOptions: micCodecOptions,
		AppData:      map[string]any{"source": "mic"},
	})
	if err != nil {
		s.notifyErr("error enabling microphone", err)
		return
	}
	if err := s.reg.SetMicProducer(producer); err != nil {
		producer.Close()
		log.Error().Err(err).Str("module", "session").Msg("mic producer slot")
		return
	}
	s.sink.AddProducer(core.ProducerInfo{ID: producer.ID(), Kind: core.KindAudio})
	log.Info().Str("module", "session").Str("producer_id", producer.ID()).Msg("mic enabled")
}

// disableMic closes the producer locally first; the server is told
// best-effort afterwards and a failure there never rolls the close back.
func (s *Session) disableMic() {
	p := s.reg.MicProducer()
	if p == nil {
		return
	}
	p.Close()
	s.reg.ClearMicProducer()
	s.sink.RemoveProducer(p.ID())

	if _, err := s.peer.Request(context.Background(), signaling.MethodCloseProducer,
		signaling.ProducerRequest{ProducerID: p.ID()}); err != nil {
		s.notifyErr("error telling server the microphone closed", err)
	}
}

func (s *Session) muteMic() {
	p := s.reg.MicProducer()
	if p == nil {
		s.skip("muteMic", "no mic producer")
		return
	}
	p.Pause()
	s.sink.SetProducerPaused(p.ID(), true)

	if _, err := s.peer.Request(context.Background(), signaling.MethodPauseProducer,
		signaling.ProducerRequest{ProducerID: p.ID()}); err != nil {
		s.notifyErr("error pausing server-side microphone", err)
	}
}

func (s *Session) unmuteMic() {
	p := s.reg.MicProducer()
	if p == nil {
		s.skip("unmuteMic", "no mic producer")
		return
	}
	p.Resume()
	s.sink.SetProducerPaused(p.ID(), false)

	if _, err := s.peer.Request(context.Background(), signaling.MethodResumeProducer,
		signaling.ProducerRequest{ProducerID: p.ID()}); err != nil {
		s.notifyErr("error resuming server-side microphone", err)
	}
}

func (s *Session) enableCam() {
	if s.reg.CamProducer() != nil {
		return
	}
	if !s.device.Loaded() {
		s.skip("enableCam", "device not loaded")
		return
	}
	if !s.device.CanProduce(core.KindVideo) {
		s.skip("enableCam", "cannot produce video")
		return
	}
	st := s.reg.SendTransport()
	if st == nil {
		s.skip("enableCam", "no send transport")
		return
	}

	producer, err := st.Produce(core.ProduceOptions{
		Kind:      core.KindVideo,
		Encodings: camEncodings,
		AppData:   map[string]any{"source": "cam"},
	})
	if err != nil {
		s.notifyErr("error enabling camera", err)
		return
	}
	if err := s.reg.SetCamProducer(producer); err != nil {
		producer.Close()
		log.Error().Err(err).Str("module", "session").Msg("cam producer slot")
		return
	}
	s.sink.AddProducer(core.ProducerInfo{ID: producer.ID(), Kind: core.KindVideo})
	log.Info().Str("module", "session").Str("producer_id", producer.ID()).Msg("cam enabled")
}

func (s *Session) disableCam() {
	p := s.reg.CamProducer()
	if p == nil {
		return
	}
	p.Close()
	s.reg.ClearCamProducer()
	s.sink.RemoveProducer(p.ID())

	if _, err := s.peer.Request(context.Background(), signaling.MethodCloseProducer,
		signaling.ProducerRequest{ProducerID: p.ID()}); err != nil {
		s.notifyErr("error telling server the camera closed", err)
	}
}

// enableAudioOnly shuts the camera and pauses video playback; audio keeps
// flowing both ways.
func (s *Session) enableAudioOnly() {
	if s.audioOnly {
		return
	}
	s.audioOnly = true
	s.sink.SetAudioOnly(true)

	s.disableCam()
	for _, h := range s.reg.Consumers() {
		if h.Kind == core.KindVideo {
			s.pauseConsumer(h)
		}
	}
}

func (s *Session) disableAudioOnly() {
	if !s.audioOnly {
		return
	}
	s.audioOnly = false
	s.sink.SetAudioOnly(false)

	for _, h := range s.reg.Consumers() {
		if h.Kind == core.KindVideo && !h.RemotelyPaused {
			s.resumeConsumer(h)
		}
	}
	if s.opts.Produce {
		s.enableCam()
	}
}

// restartICE restarts each active transport independently; one failing must
// not stop the attempt on the other.
func (s *Session) restartICE() {
	if s.reg.SendTransport() == nil && s.reg.RecvTransport() == nil {
		s.skip("restartIce", "no active transports")
		return
	}
	s.sink.SetRestartICEInProgress(true)
	defer s.sink.SetRestartICEInProgress(false)

	var errs []error
	for _, tr := range []core.Transport{s.reg.SendTransport(), s.reg.RecvTransport()} {
		if tr == nil {
			continue
		}
		data, err := s.peer.Request(context.Background(), signaling.MethodRestartICE,
			signaling.RestartICERequest{TransportID: tr.ID()})
		if err != nil {
			errs = append(errs, fmt.Errorf("transport %s: %w", tr.ID(), err))
			continue
		}
		var resp signaling.RestartICEResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			errs = append(errs, fmt.Errorf("transport %s: %w", tr.ID(), err))
			continue
		}
		if err := tr.RestartICE(resp.ICEParameters); err != nil {
			errs = append(errs, fmt.Errorf("transport %s: %w", tr.ID(), err))
		}
	}

	if len(errs) > 0 {
		s.notifyErr("ICE restart failed", errors.Join(errs...))
		return
	}
	s.sink.Notify(core.Notification{Severity: core.SeverityInfo, Text: "ICE restarted", TimeoutMs: 3000})
}

func (s *Session) changeDisplayName(name string) {
	if err := domain.ValidateDisplayName(name); err != nil {
		s.notifyErr("invalid display name", err)
		return
	}

	// Optimistic store update; reverted if the server rejects the rename.
	previous := s.displayName
	s.sink.SetDisplayName(name)

	if _, err := s.peer.Request(context.Background(), signaling.MethodChangeDisplayName,
		signaling.ChangeDisplayNameRequest{DisplayName: name}); err != nil {
		s.sink.SetDisplayName(previous)
		s.notifyErr("could not change display name", err)
		return
	}

	s.displayName = name
	if s.opts.SaveDisplayName != nil {
		s.opts.SaveDisplayName(name)
	}
	s.sink.Notify(core.Notification{Severity: core.SeverityInfo, Text: "display name changed", TimeoutMs: 3000})
}

// pauseConsumer is a local playback decision plus a best-effort server hint.
func (s *Session) pauseConsumer(h *ConsumerHolder) {
	if h.LocallyPaused {
		return
	}
	h.Consumer.Pause()
	h.LocallyPaused = true
	s.sink.SetConsumerPaused(h.Consumer.ID(), true)

	if _, err := s.peer.Request(context.Background(), signaling.MethodPauseConsumer,
		signaling.ConsumerRequest{ConsumerID: h.Consumer.ID()}); err != nil {
		s.notifyErr("error pausing server-side consumer", err)
	}
}

func (s *Session) resumeConsumer(h *ConsumerHolder) {
	if !h.LocallyPaused {
		return
	}
	h.Consumer.Resume()
	h.LocallyPaused = false
	s.sink.SetConsumerPaused(h.Consumer.ID(), false)

	if _, err := s.peer.Request(context.Background(), signaling.MethodResumeConsumer,
		signaling.ConsumerRequest{ConsumerID: h.Consumer.ID()}); err != nil {
		s.notifyErr("error resuming server-side consumer", err)
	}
	if h.Kind == core.KindVideo {
		// A resumed video consumer renders garbage until the next key frame.
		if _, err := s.peer.Request(context.Background(), signaling.MethodRequestConsumerKeyFrame,
			signaling.ConsumerRequest{ConsumerID: h.Consumer.ID()}); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("key frame request failed")
		}
	}
}
