// Package ws provides the gorilla/websocket implementation of the signaling
// message transport, including automatic redial on connection loss.
package ws

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024

	maxRetries   = 8
	retryBackoff = 2 * time.Second
)

var ErrTransportClosed = errors.New("websocket transport closed")

// Transport dials the signaling server and pumps frames both ways. A lost
// connection is retried with linear backoff; the Disconnected event is
// emitted between attempts and Open again on success. Closed is emitted
// exactly once, on Close() or when retries are exhausted.
type Transport struct {
	url string

	outgoing chan core.Frame
	incoming chan core.Frame
	events   chan core.TransportEvent

	done   chan struct{}
	closed atomic.Bool
}

func NewTransport(url string) *Transport {
	t := &Transport{
		url:      url,
		outgoing: make(chan core.Frame, 32),
		incoming: make(chan core.Frame, 32),
		events:   make(chan core.TransportEvent, 8),
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Transport) Incoming() <-chan core.Frame        { return t.incoming }
func (t *Transport) Events() <-chan core.TransportEvent { return t.events }

// Send enqueues a frame for delivery. Frames queued while the socket is down
// are flushed after reconnect.
func (t *Transport) Send(f core.Frame) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	select {
	case t.outgoing <- f:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// Close shuts the transport down. Idempotent.
func (t *Transport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	close(t.done)
}

func (t *Transport) run() {
	defer func() {
		t.events <- core.TransportEvent{Kind: core.TransportClosed}
		close(t.incoming)
		close(t.events)
	}()

	dialer := websocket.Dialer{
		Subprotocols:     []string{"protoo"},
		HandshakeTimeout: writeWait,
	}

	attempt := 0
	for {
		conn, _, err := dialer.Dial(t.url, nil)
		if err != nil {
			attempt++
			log.Error().Err(err).Str("module", "ws").Str("url", t.url).Int("attempt", attempt).Msg("dial failed")
			t.events <- core.TransportEvent{Kind: core.TransportFailed, Err: err}
			if attempt >= maxRetries {
				return
			}
			select {
			case <-time.After(time.Duration(attempt) * retryBackoff):
				continue
			case <-t.done:
				return
			}
		}
		attempt = 0

		log.Info().Str("module", "ws").Str("url", t.url).Msg("connected")
		t.events <- core.TransportEvent{Kind: core.TransportOpen}

		t.session(conn)

		if t.closed.Load() {
			return
		}
		log.Warn().Str("module", "ws").Msg("connection lost, retrying")
		t.events <- core.TransportEvent{Kind: core.TransportDisconnected}
	}
}

// session pumps a single live connection until it drops or Close is called.
func (t *Transport) session(conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go t.writePump(conn, stop)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "ws").Msg("read error")
			_ = conn.Close()
			return
		}
		t.incoming <- core.Frame(data)
	}
}

func (t *Transport) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-t.outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("write error")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-t.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			return
		case <-stop:
			return
		}
	}
}
