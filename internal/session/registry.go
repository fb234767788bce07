// Package session implements the room session state machine, its resource
// registry and the serialized command loop that drives both.
package session

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
)

// ErrSlotOccupied reports assignment into a non-empty single-occupancy slot.
// It indicates a bug in the caller, not a runtime condition.
var ErrSlotOccupied = errors.New("resource slot already occupied")

// ConsumerHolder associates a live consumer with its remote peer and the
// two independent pause inputs (local playback vs producer-side).
type ConsumerHolder struct {
	PeerID         domain.PeerID
	Consumer       core.Consumer
	Kind           core.MediaKind
	LocallyPaused  bool
	RemotelyPaused bool
}

// Registry owns the mappings from identifiers to live media objects.
// It has no locking: only the session worker goroutine touches it.
type Registry struct {
	sendTransport core.Transport
	recvTransport core.Transport
	micProducer   core.Producer
	camProducer   core.Producer
	consumers     map[string]*ConsumerHolder
}

func NewRegistry() *Registry {
	return &Registry{consumers: make(map[string]*ConsumerHolder)}
}

func (r *Registry) SetSendTransport(t core.Transport) error {
	if r.sendTransport != nil {
		return ErrSlotOccupied
	}
	r.sendTransport = t
	return nil
}

func (r *Registry) SetRecvTransport(t core.Transport) error {
	if r.recvTransport != nil {
		return ErrSlotOccupied
	}
	r.recvTransport = t
	return nil
}

func (r *Registry) SendTransport() core.Transport { return r.sendTransport }
func (r *Registry) RecvTransport() core.Transport { return r.recvTransport }

func (r *Registry) SetMicProducer(p core.Producer) error {
	if r.micProducer != nil {
		return ErrSlotOccupied
	}
	r.micProducer = p
	return nil
}

func (r *Registry) SetCamProducer(p core.Producer) error {
	if r.camProducer != nil {
		return ErrSlotOccupied
	}
	r.camProducer = p
	return nil
}

func (r *Registry) MicProducer() core.Producer { return r.micProducer }
func (r *Registry) CamProducer() core.Producer { return r.camProducer }

func (r *Registry) ClearMicProducer() { r.micProducer = nil }
func (r *Registry) ClearCamProducer() { r.camProducer = nil }

func (r *Registry) AddConsumer(h *ConsumerHolder) {
	r.consumers[h.Consumer.ID()] = h
}

func (r *Registry) Consumer(id string) (*ConsumerHolder, bool) {
	h, ok := r.consumers[id]
	return h, ok
}

func (r *Registry) RemoveConsumer(id string) (*ConsumerHolder, bool) {
	h, ok := r.consumers[id]
	if ok {
		delete(r.consumers, id)
	}
	return h, ok
}

// Consumers returns a snapshot slice; safe to mutate the registry while
// ranging over it.
func (r *Registry) Consumers() []*ConsumerHolder {
	out := make([]*ConsumerHolder, 0, len(r.consumers))
	for _, h := range r.consumers {
		out = append(out, h)
	}
	return out
}

// ClearConsumers empties the consumer map and returns the removed holders
// so the caller can dispose them.
func (r *Registry) ClearConsumers() []*ConsumerHolder {
	out := r.Consumers()
	r.consumers = make(map[string]*ConsumerHolder)
	return out
}

// DisposeTransports closes and empties both transport slots. Idempotent:
// repeated calls on empty slots are no-ops. Producers and consumers bound to
// the transports die with them; callers clear those slots separately because
// disconnect and full teardown share this step but differ in the rest.
func (r *Registry) DisposeTransports() {
	if r.sendTransport != nil {
		r.sendTransport.Close()
		r.sendTransport = nil
		log.Debug().Str("module", "session.registry").Msg("send transport disposed")
	}
	if r.recvTransport != nil {
		r.recvTransport.Close()
		r.recvTransport = nil
		log.Debug().Str("module", "session.registry").Msg("recv transport disposed")
	}
}
