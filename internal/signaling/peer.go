package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
)

var (
	// ErrClosed fails a request issued after, or pending at, peer teardown.
	ErrClosed = errors.New("signaling peer closed")
	// ErrDisconnected fails requests pending when the socket drops; the
	// transport may still reconnect afterwards.
	ErrDisconnected = errors.New("signaling connection lost")
	// ErrTimeout fails a request whose response never arrived in time.
	ErrTimeout = errors.New("signaling request timed out")
)

// ServerError is an RPC rejection from the server.
type ServerError struct {
	Code   int
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("signaling rejection %d: %s", e.Code, e.Reason)
}

// Notification is a server push with no response expected.
type Notification struct {
	Method string
	Data   json.RawMessage
}

// IncomingRequest is a server push that expects Accept or Reject, exactly
// once. Repeated calls are no-ops returning nil.
type IncomingRequest struct {
	Method string
	Data   json.RawMessage

	peer *Peer
	msg  *Message
	once sync.Once
}

func (r *IncomingRequest) Accept(data json.RawMessage) error {
	var err error
	r.once.Do(func() {
		err = r.peer.send(NewResponse(r.msg, data))
	})
	return err
}

func (r *IncomingRequest) Reject(code int, reason string) error {
	var err error
	r.once.Do(func() {
		err = r.peer.send(NewRejection(r.msg, code, reason))
	})
	return err
}

type response struct {
	data json.RawMessage
	err  error
}

// pushItem is a queued server push; exactly one field is set.
type pushItem struct {
	note Notification
	req  *IncomingRequest
}

// Peer correlates outbound requests with responses over a MsgTransport and
// exposes server pushes as typed streams. The read goroutine resolves
// responses directly; pushes go through an unbounded queue drained by a
// second goroutine, so a slow push consumer never delays a pending RPC.
// Request is safe from any goroutine.
type Peer struct {
	transport core.MsgTransport
	timeout   time.Duration

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan response

	pushMu   sync.Mutex
	pushQ    []pushItem
	pushWake chan struct{}

	notifications chan Notification
	requests      chan *IncomingRequest
	events        chan core.TransportEvent

	closed atomic.Bool
}

func NewPeer(transport core.MsgTransport, timeout time.Duration) *Peer {
	p := &Peer{
		transport:     transport,
		timeout:       timeout,
		pending:       make(map[int64]chan response),
		pushWake:      make(chan struct{}, 1),
		notifications: make(chan Notification, 32),
		requests:      make(chan *IncomingRequest, 8),
		events:        make(chan core.TransportEvent, 8),
	}
	go p.loop()
	go p.deliverPushes()
	return p
}

func (p *Peer) Notifications() <-chan Notification { return p.notifications }
func (p *Peer) Requests() <-chan *IncomingRequest  { return p.requests }
func (p *Peer) Events() <-chan core.TransportEvent { return p.events }

// Request sends a correlated RPC and blocks until response, rejection,
// timeout or teardown. data may be nil for parameterless methods.
func (p *Peer) Request(ctx context.Context, method string, data any) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", method, err)
		}
		raw = b
	}

	id := atomic.AddInt64(&p.nextID, 1)
	ch := make(chan response, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()

	log.Debug().Str("module", "signaling").Str("method", method).Int64("id", id).Msg("request")

	if err := p.send(NewRequest(id, method, raw)); err != nil {
		p.unregister(id)
		return nil, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-timer.C:
		p.unregister(id)
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		p.unregister(id)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification to the server.
func (p *Peer) Notify(method string, data any) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s notification: %w", method, err)
		}
		raw = b
	}
	return p.send(NewNotification(method, raw))
}

// Close tears down the transport and cancels all pending requests.
// Idempotent, callable from any goroutine.
func (p *Peer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.failPending(ErrClosed)
	p.transport.Close()
}

func (p *Peer) send(m *Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	f, err := m.Encode()
	if err != nil {
		return err
	}
	return p.transport.Send(f)
}

func (p *Peer) unregister(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *Peer) failPending(err error) {
	p.mu.Lock()
	for id, ch := range p.pending {
		ch <- response{err: err}
		delete(p.pending, id)
	}
	p.mu.Unlock()
}

func (p *Peer) loop() {
	incoming := p.transport.Incoming()
	events := p.transport.Events()
	for incoming != nil || events != nil {
		select {
		case f, ok := <-incoming:
			if !ok {
				incoming = nil
				continue
			}
			p.handleFrame(f)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case core.TransportDisconnected:
				p.failPending(ErrDisconnected)
			case core.TransportClosed:
				p.closed.Store(true)
				p.failPending(ErrClosed)
			}
			p.events <- ev
		}
	}
	close(p.pushWake)
	close(p.events)
}

// deliverPushes owns the outbound side of the push queue. The channels close
// only after the read loop has exited, so no enqueue can race the drain.
func (p *Peer) deliverPushes() {
	for range p.pushWake {
		p.flushPushes()
	}
	p.flushPushes()
	close(p.notifications)
	close(p.requests)
}

func (p *Peer) flushPushes() {
	for {
		p.pushMu.Lock()
		if len(p.pushQ) == 0 {
			p.pushMu.Unlock()
			return
		}
		item := p.pushQ[0]
		p.pushQ = p.pushQ[1:]
		p.pushMu.Unlock()

		if item.req != nil {
			p.requests <- item.req
		} else {
			p.notifications <- item.note
		}
	}
}

func (p *Peer) enqueuePush(item pushItem) {
	p.pushMu.Lock()
	p.pushQ = append(p.pushQ, item)
	p.pushMu.Unlock()
	select {
	case p.pushWake <- struct{}{}:
	default:
	}
}

func (p *Peer) handleFrame(f core.Frame) {
	m, err := ParseMessage(f)
	if err != nil {
		log.Warn().Err(err).Str("module", "signaling").Msg("dropping malformed frame")
		return
	}

	switch {
	case m.Response:
		p.mu.Lock()
		ch, ok := p.pending[m.ID]
		delete(p.pending, m.ID)
		p.mu.Unlock()
		if !ok {
			log.Warn().Str("module", "signaling").Int64("id", m.ID).Msg("response for unknown request")
			return
		}
		if m.OK {
			ch <- response{data: m.Data}
		} else {
			ch <- response{err: &ServerError{Code: m.ErrorCode, Reason: m.ErrorReason}}
		}
	case m.Notification:
		p.enqueuePush(pushItem{note: Notification{Method: m.Method, Data: m.Data}})
	case m.Request:
		p.enqueuePush(pushItem{req: &IncomingRequest{Method: m.Method, Data: m.Data, peer: p, msg: m}})
	}
}
