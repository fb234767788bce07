package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
	"github.com/voxmesh/roomclient/internal/signaling"
)

// fakeServer implements core.MsgTransport and answers signaling requests
// from a per-method handler table, standing in for the session server.
type fakeServer struct {
	mu       sync.Mutex
	handlers map[string]func(data json.RawMessage) (json.RawMessage, error)
	sent     []*signaling.Message

	incoming  chan core.Frame
	events    chan core.TransportEvent
	closeOnce sync.Once

	produceSeq   int
	transportSeq int
}

func newFakeServer() *fakeServer {
	s := &fakeServer{
		handlers: make(map[string]func(json.RawMessage) (json.RawMessage, error)),
		incoming: make(chan core.Frame, 64),
		events:   make(chan core.TransportEvent, 8),
	}

	ok := func(json.RawMessage) (json.RawMessage, error) { return json.RawMessage(`{}`), nil }

	s.handlers[signaling.MethodGetRouterRtpCapabilities] = func(json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"},{"mimeType":"video/VP8"}]}`), nil
	}
	s.handlers[signaling.MethodCreateWebRtcTransport] = func(json.RawMessage) (json.RawMessage, error) {
		s.transportSeq++
		desc := fmt.Sprintf(`{"id":"transport-%d","iceParameters":{},"iceCandidates":[],"dtlsParameters":{}}`, s.transportSeq)
		return json.RawMessage(desc), nil
	}
	s.handlers[signaling.MethodJoin] = func(json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"peers":[{"id":"peer-a","displayName":"Alice","device":{"name":"web"}}]}`), nil
	}
	s.handlers[signaling.MethodProduce] = func(json.RawMessage) (json.RawMessage, error) {
		s.produceSeq++
		return json.RawMessage(fmt.Sprintf(`{"id":"producer-%d"}`, s.produceSeq)), nil
	}
	s.handlers[signaling.MethodRestartICE] = func(json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"iceParameters":{"usernameFragment":"u2"}}`), nil
	}
	for _, m := range []string{
		signaling.MethodConnectWebRtcTransport,
		signaling.MethodCloseProducer,
		signaling.MethodPauseProducer,
		signaling.MethodResumeProducer,
		signaling.MethodPauseConsumer,
		signaling.MethodResumeConsumer,
		signaling.MethodRequestConsumerKeyFrame,
		signaling.MethodChangeDisplayName,
	} {
		s.handlers[m] = ok
	}
	return s
}

// set replaces a handler; use it to script rejections or drop responses.
func (s *fakeServer) set(method string, fn func(json.RawMessage) (json.RawMessage, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.handlers, method)
		return
	}
	s.handlers[method] = fn
}

func (s *fakeServer) Send(frame core.Frame) error {
	m, err := signaling.ParseMessage(frame)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, m)
	fn, handled := s.handlers[m.Method]
	s.mu.Unlock()

	if !m.Request {
		return nil
	}
	if !handled {
		// No handler: the request hangs until the caller's timeout.
		return nil
	}

	s.mu.Lock()
	data, err := fn(m.Data)
	s.mu.Unlock()

	var resp *signaling.Message
	if err != nil {
		var srvErr *signaling.ServerError
		if errors.As(err, &srvErr) {
			resp = signaling.NewRejection(m, srvErr.Code, srvErr.Reason)
		} else {
			resp = signaling.NewRejection(m, 500, err.Error())
		}
	} else {
		resp = signaling.NewResponse(m, data)
	}
	respFrame, _ := resp.Encode()
	s.incoming <- respFrame
	return nil
}

func (s *fakeServer) Incoming() <-chan core.Frame        { return s.incoming }
func (s *fakeServer) Events() <-chan core.TransportEvent { return s.events }

func (s *fakeServer) Close() {
	s.closeOnce.Do(func() {
		s.events <- core.TransportEvent{Kind: core.TransportClosed}
		close(s.incoming)
		close(s.events)
	})
}

func (s *fakeServer) open()       { s.events <- core.TransportEvent{Kind: core.TransportOpen} }
func (s *fakeServer) disconnect() { s.events <- core.TransportEvent{Kind: core.TransportDisconnected} }

func (s *fakeServer) pushRequest(id int64, method string, data string) {
	frame, _ := (&signaling.Message{Request: true, ID: id, Method: method, Data: json.RawMessage(data)}).Encode()
	s.incoming <- frame
}

func (s *fakeServer) pushNotification(method string, data string) {
	frame, _ := signaling.NewNotification(method, json.RawMessage(data)).Encode()
	s.incoming <- frame
}

func (s *fakeServer) sentMessages() []*signaling.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*signaling.Message(nil), s.sent...)
}

func (s *fakeServer) requestCount(method string) int {
	n := 0
	for _, m := range s.sentMessages() {
		if m.Request && m.Method == method {
			n++
		}
	}
	return n
}

// responseTo returns the client's answer to a server-pushed request.
func (s *fakeServer) responseTo(id int64) *signaling.Message {
	for _, m := range s.sentMessages() {
		if m.Response && m.ID == id {
			return m
		}
	}
	return nil
}

// fakeDevice implements core.Device with transports that count lifecycle
// calls.
type fakeDevice struct {
	mu       sync.Mutex
	loaded   bool
	canAudio bool
	canVideo bool
	created  []*fakeMediaTransport
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{canAudio: true, canVideo: true}
}

func (d *fakeDevice) Load(caps json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return errors.New("already loaded")
	}
	if len(caps) == 0 {
		return errors.New("empty capabilities")
	}
	d.loaded = true
	return nil
}

func (d *fakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *fakeDevice) CanProduce(kind core.MediaKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return false
	}
	if kind == core.KindAudio {
		return d.canAudio
	}
	return d.canVideo
}

func (d *fakeDevice) RTPCapabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":[]}`)
}

func (d *fakeDevice) CreateSendTransport(opts core.TransportOptions, h core.TransportHandler) (core.Transport, error) {
	return d.create(opts, h)
}

func (d *fakeDevice) CreateRecvTransport(opts core.TransportOptions, h core.TransportHandler) (core.Transport, error) {
	return d.create(opts, h)
}

func (d *fakeDevice) create(opts core.TransportOptions, h core.TransportHandler) (core.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &fakeMediaTransport{id: opts.ID, handler: h}
	d.created = append(d.created, t)
	return t, nil
}

func (d *fakeDevice) transports() []*fakeMediaTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeMediaTransport(nil), d.created...)
}

type fakeMediaTransport struct {
	id      string
	handler core.TransportHandler

	mu         sync.Mutex
	connected  bool
	closes     int
	restarts   int
	producers  []*fakeProducer
	consumers  []*fakeConsumer
	produceErr error
}

func (t *fakeMediaTransport) ID() string { return t.id }

func (t *fakeMediaTransport) ensureConnected() error {
	if t.connected {
		return nil
	}
	if err := t.handler.OnConnect(t.id, json.RawMessage(`{"role":"client"}`)); err != nil {
		return err
	}
	t.connected = true
	return nil
}

func (t *fakeMediaTransport) Produce(opts core.ProduceOptions) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.produceErr != nil {
		return nil, t.produceErr
	}
	if err := t.ensureConnected(); err != nil {
		return nil, err
	}
	id, err := t.handler.OnProduce(t.id, opts.Kind, json.RawMessage(`{"codecs":[]}`), opts.AppData)
	if err != nil {
		return nil, err
	}
	p := &fakeProducer{id: id, kind: opts.Kind}
	t.producers = append(t.producers, p)
	return p, nil
}

func (t *fakeMediaTransport) Consume(opts core.ConsumeOptions) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnected(); err != nil {
		return nil, err
	}
	c := &fakeConsumer{id: opts.ID, kind: opts.Kind}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *fakeMediaTransport) RestartICE(json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
	return nil
}

func (t *fakeMediaTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
}

func (t *fakeMediaTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeMediaTransport) allProducers() []*fakeProducer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeProducer(nil), t.producers...)
}

type fakeProducer struct {
	id   string
	kind core.MediaKind

	mu     sync.Mutex
	paused bool
	closes int
}

func (p *fakeProducer) ID() string           { return p.id }
func (p *fakeProducer) Kind() core.MediaKind { return p.kind }

func (p *fakeProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakeProducer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *fakeProducer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
}

func (p *fakeProducer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeConsumer struct {
	id   string
	kind core.MediaKind

	mu     sync.Mutex
	paused bool
	closes int
}

func (c *fakeConsumer) ID() string           { return c.id }
func (c *fakeConsumer) Kind() core.MediaKind { return c.kind }

func (c *fakeConsumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeConsumer) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *fakeConsumer) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

// recordingSink implements core.StoreSink and records every call in arrival
// order for assertions.
type recordingSink struct {
	mu            sync.Mutex
	events        []string
	states        []core.RoomState
	notifications []core.Notification
}

func newRecordingSink() *recordingSink { return &recordingSink{} }

func (r *recordingSink) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) SetRoomState(s core.RoomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	r.events = append(r.events, "state:"+string(s))
}

func (r *recordingSink) Notify(n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	r.events = append(r.events, "notify:"+string(n.Severity))
}

func (r *recordingSink) AddPeer(p domain.Peer)       { r.record("peer.add:" + string(p.ID)) }
func (r *recordingSink) RemovePeer(id domain.PeerID) { r.record("peer.remove:" + string(id)) }
func (r *recordingSink) SetPeerDisplayName(id domain.PeerID, name string) {
	r.record("peer.rename:" + string(id) + ":" + name)
}
func (r *recordingSink) SetPeerVolume(id domain.PeerID, volume int) {
	r.record(fmt.Sprintf("peer.volume:%s:%d", id, volume))
}

func (r *recordingSink) AddProducer(p core.ProducerInfo) { r.record("producer.add:" + p.ID) }
func (r *recordingSink) RemoveProducer(id string)        { r.record("producer.remove:" + id) }
func (r *recordingSink) SetProducerPaused(id string, paused bool) {
	r.record(fmt.Sprintf("producer.paused:%s:%t", id, paused))
}

func (r *recordingSink) AddConsumer(c core.ConsumerInfo) { r.record("consumer.add:" + c.ID) }
func (r *recordingSink) RemoveConsumer(id string)        { r.record("consumer.remove:" + id) }
func (r *recordingSink) SetConsumerPaused(id string, paused bool) {
	r.record(fmt.Sprintf("consumer.paused:%s:%t", id, paused))
}

func (r *recordingSink) SetMediaCapabilities(mic, cam bool) {
	r.record(fmt.Sprintf("caps:%t:%t", mic, cam))
}
func (r *recordingSink) SetDisplayName(name string)    { r.record("displayName:" + name) }
func (r *recordingSink) SetAudioOnly(v bool)           { r.record(fmt.Sprintf("audioOnly:%t", v)) }
func (r *recordingSink) SetAudioOnlyInProgress(v bool) { r.record(fmt.Sprintf("audioOnlyBusy:%t", v)) }
func (r *recordingSink) SetCamInProgress(v bool)       { r.record(fmt.Sprintf("camBusy:%t", v)) }
func (r *recordingSink) SetRestartICEInProgress(v bool) {
	r.record(fmt.Sprintf("restartIceBusy:%t", v))
}

func (r *recordingSink) state() core.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return core.RoomNew
	}
	return r.states[len(r.states)-1]
}

func (r *recordingSink) stateCount(s core.RoomState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.states {
		if st == s {
			n++
		}
	}
	return n
}

func (r *recordingSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingSink) count(ev string) int {
	n := 0
	for _, e := range r.all() {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recordingSink) indexOf(ev string) int {
	for i, e := range r.all() {
		if e == ev {
			return i
		}
	}
	return -1
}

func (r *recordingSink) errorNotifications() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notifications {
		if note.Severity == core.SeverityError {
			n++
		}
	}
	return n
}
