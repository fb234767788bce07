package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
	"github.com/voxmesh/roomclient/internal/signaling"
)

// Options configures a room session. Produce/Consume select the media
// directions negotiated during the join handshake.
type Options struct {
	RoomID      domain.RoomID
	PeerID      domain.PeerID
	DisplayName string
	Device      domain.DeviceInfo
	Produce     bool
	Consume     bool
	ForceTCP    bool
	ICEServers  []webrtc.ICEServer

	// SaveDisplayName persists the preference after a successful rename.
	// Optional; failures are the callback's problem.
	SaveDisplayName func(name string)
}

// Session is the aggregate root of one room connection. All mutation happens
// on the worker goroutine; the only cross-goroutine state is the closed flag.
type Session struct {
	opts   Options
	peer   *signaling.Peer
	device core.Device
	reg    *Registry
	sink   core.StoreSink

	// worker-owned
	state       core.RoomState
	displayName string
	audioOnly   bool

	jobs   chan job
	closed atomic.Bool
	done   chan struct{}
}

type job struct {
	name string
	fn   func()
}

func New(peer *signaling.Peer, device core.Device, sink core.StoreSink, opts Options) *Session {
	s := &Session{
		opts:        opts,
		peer:        peer,
		device:      device,
		reg:         NewRegistry(),
		sink:        sink,
		state:       core.RoomNew,
		displayName: opts.DisplayName,
		jobs:        make(chan job, 128),
		done:        make(chan struct{}),
	}
	sink.SetDisplayName(opts.DisplayName)
	go s.loop()
	return s
}

// Done is closed once the worker loop has exited after teardown.
func (s *Session) Done() <-chan struct{} { return s.done }

// Join transitions the session out of NEW. The actual handshake runs when
// the signaling transport reports open.
func (s *Session) Join() {
	s.post("join", func() {
		if s.state != core.RoomNew {
			return
		}
		s.setState(core.RoomConnecting)
	})
}

// Close tears the session down. Idempotent, callable from any goroutine.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	select {
	case s.jobs <- job{name: "close", fn: s.teardown}:
	case <-s.done:
	}
}

// post enqueues a command, fire-and-forget. Dropped silently once closed.
func (s *Session) post(name string, fn func()) {
	if s.closed.Load() {
		log.Debug().Str("module", "session").Str("command", name).Msg("dropped, session closed")
		return
	}
	select {
	case s.jobs <- job{name: name, fn: fn}:
	case <-s.done:
	}
}

// loop is the single serial execution context. Commands, server pushes and
// transport lifecycle events are consumed in arrival order, each run to
// completion before the next.
func (s *Session) loop() {
	defer close(s.done)

	notifications := s.peer.Notifications()
	requests := s.peer.Requests()
	events := s.peer.Events()

	for {
		select {
		case j := <-s.jobs:
			s.run(j)
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			s.run(job{name: "notification/" + n.Method, fn: func() { s.handleNotification(n) }})
		case r, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			s.run(job{name: "request/" + r.Method, fn: func() { s.handleRequest(r) }})
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleTransportEvent(ev)
		}
		if s.state == core.RoomClosed {
			return
		}
	}
}

func (s *Session) run(j job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "session").Str("command", j.name).Any("panic", rec).Msg("command panicked")
			s.sink.Notify(core.Notification{Severity: core.SeverityError, Text: "internal error"})
		}
	}()
	log.Debug().Str("module", "session").Str("command", j.name).Msg("run")
	j.fn()
}

func (s *Session) setState(st core.RoomState) {
	if s.state == st {
		return
	}
	s.state = st
	s.sink.SetRoomState(st)
}

func (s *Session) handleTransportEvent(ev core.TransportEvent) {
	log.Info().Str("module", "session").Str("event", ev.Kind.String()).Msg("transport event")
	switch ev.Kind {
	case core.TransportOpen:
		if s.state == core.RoomClosed {
			return
		}
		s.joinRoom()
	case core.TransportFailed:
		s.sink.Notify(core.Notification{Severity: core.SeverityError, Text: "signaling connection failed"})
	case core.TransportDisconnected:
		s.handleDisconnect()
	case core.TransportClosed:
		s.closed.Store(true)
		s.teardown()
	}
}

// handleDisconnect resets media state but keeps the room identity: the
// transport keeps retrying and a fresh open event reruns the handshake.
func (s *Session) handleDisconnect() {
	if s.state == core.RoomClosed {
		return
	}
	s.sink.Notify(core.Notification{Severity: core.SeverityError, Text: "connection lost, reconnecting"})

	s.closeLocalMedia()
	s.setState(core.RoomConnecting)
}

// closeLocalMedia disposes producers, consumers and transports without any
// server RPC. Used on disconnect (socket is gone) and during teardown.
func (s *Session) closeLocalMedia() {
	if p := s.reg.MicProducer(); p != nil {
		p.Close()
		s.reg.ClearMicProducer()
		s.sink.RemoveProducer(p.ID())
	}
	if p := s.reg.CamProducer(); p != nil {
		p.Close()
		s.reg.ClearCamProducer()
		s.sink.RemoveProducer(p.ID())
	}
	for _, h := range s.reg.ClearConsumers() {
		h.Consumer.Close()
		s.sink.RemoveConsumer(h.Consumer.ID())
	}
	s.reg.DisposeTransports()
}

// teardown moves the session to CLOSED. Safe to call repeatedly; only the
// first call does work. Runs on the worker.
func (s *Session) teardown() {
	if s.state == core.RoomClosed {
		return
	}
	log.Info().Str("module", "session").Str("room", string(s.opts.RoomID)).Msg("closing session")
	s.closeLocalMedia()
	s.peer.Close()
	s.setState(core.RoomClosed)
}

// joinRoom runs the join handshake. Any failure other than a socket drop is
// fatal to the session: a half-initialized room is worse than no room.
func (s *Session) joinRoom() {
	s.setState(core.RoomConnecting)
	if err := s.doJoin(); err != nil {
		if errors.Is(err, signaling.ErrDisconnected) {
			// The transport is already retrying; the next open event
			// restarts the handshake.
			log.Warn().Err(err).Str("module", "session").Msg("join interrupted by disconnect")
			return
		}
		log.Error().Err(err).Str("module", "session").Msg("join failed")
		s.sink.Notify(core.Notification{
			Severity: core.SeverityError,
			Text:     fmt.Sprintf("could not join the room: %v", err),
		})
		s.closed.Store(true)
		s.teardown()
	}
}

func (s *Session) doJoin() error {
	ctx := context.Background()

	caps, err := s.peer.Request(ctx, signaling.MethodGetRouterRtpCapabilities, nil)
	if err != nil {
		return fmt.Errorf("get router capabilities: %w", err)
	}
	if !s.device.Loaded() {
		if err := s.device.Load(caps); err != nil {
			return fmt.Errorf("load device: %w", err)
		}
	}
	s.sink.SetMediaCapabilities(
		s.device.CanProduce(core.KindAudio),
		s.device.CanProduce(core.KindVideo),
	)

	if s.opts.Produce {
		if err := s.createTransport(ctx, true); err != nil {
			return err
		}
	}
	if s.opts.Consume {
		if err := s.createTransport(ctx, false); err != nil {
			return err
		}
	}

	req := signaling.JoinRequest{
		DisplayName: s.displayName,
		Device:      s.opts.Device,
	}
	if s.opts.Consume {
		req.RTPCapabilities = s.device.RTPCapabilities()
	}
	data, err := s.peer.Request(ctx, signaling.MethodJoin, req)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	var resp signaling.JoinResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse join response: %w", err)
	}

	s.setState(core.RoomConnected)
	s.sink.Notify(core.Notification{Severity: core.SeverityInfo, Text: "you are in the room", TimeoutMs: 3000})
	for _, p := range resp.Peers {
		s.sink.AddPeer(p)
	}

	// Mic and cam come up as independent follow-up commands so neither
	// failure blocks the other.
	if s.opts.Produce {
		s.post("enableMic", s.enableMic)
		s.post("enableCam", s.enableCam)
	}
	return nil
}

func (s *Session) createTransport(ctx context.Context, producing bool) error {
	direction := "recv"
	if producing {
		direction = "send"
	}

	data, err := s.peer.Request(ctx, signaling.MethodCreateWebRtcTransport, signaling.CreateTransportRequest{
		ForceTCP:  s.opts.ForceTCP,
		Producing: producing,
		Consuming: !producing,
	})
	if err != nil {
		return fmt.Errorf("create %s transport: %w", direction, err)
	}
	var resp signaling.CreateTransportResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse %s transport descriptor: %w", direction, err)
	}

	topts := core.TransportOptions{
		ID:             resp.ID,
		ICEParameters:  resp.ICEParameters,
		ICECandidates:  resp.ICECandidates,
		DTLSParameters: resp.DTLSParameters,
		ICEServers:     s.opts.ICEServers,
	}

	var tr core.Transport
	if producing {
		tr, err = s.device.CreateSendTransport(topts, &transportHandler{s: s})
	} else {
		tr, err = s.device.CreateRecvTransport(topts, &transportHandler{s: s})
	}
	if err != nil {
		return fmt.Errorf("bind %s transport: %w", direction, err)
	}

	if producing {
		err = s.reg.SetSendTransport(tr)
	} else {
		err = s.reg.SetRecvTransport(tr)
	}
	if err != nil {
		tr.Close()
		return fmt.Errorf("%s transport: %w", direction, err)
	}
	log.Info().Str("module", "session").Str("direction", direction).Str("transport_id", resp.ID).Msg("transport ready")
	return nil
}

// transportHandler relays the media engine's connect/produce needs back to
// the signaling peer. Calls arrive synchronously on the worker.
type transportHandler struct {
	s *Session
}

func (h *transportHandler) OnConnect(transportID string, dtlsParameters json.RawMessage) error {
	_, err := h.s.peer.Request(context.Background(), signaling.MethodConnectWebRtcTransport, signaling.ConnectTransportRequest{
		TransportID:    transportID,
		DTLSParameters: dtlsParameters,
	})
	return err
}

func (h *transportHandler) OnProduce(transportID string, kind core.MediaKind, rtpParameters json.RawMessage, appData map[string]any) (string, error) {
	data, err := h.s.peer.Request(context.Background(), signaling.MethodProduce, signaling.ProduceRequest{
		TransportID:   transportID,
		Kind:          string(kind),
		RTPParameters: rtpParameters,
		AppData:       appData,
	})
	if err != nil {
		return "", err
	}
	var resp signaling.ProduceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse produce response: %w", err)
	}
	return resp.ID, nil
}
