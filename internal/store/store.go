// Package store holds the UI-facing session state. It is the only component
// mutated from multiple goroutines: scalar fields are last-write-wins,
// notifications are append-only with a bounded history.
package store

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
)

const maxNotifications = 100

// PeerView is a peer plus UI-only attributes.
type PeerView struct {
	domain.Peer
	Volume int `json:"volume"`
}

// Snapshot is a point-in-time copy of the whole store, safe to serialize.
type Snapshot struct {
	RoomState     core.RoomState               `json:"roomState"`
	DisplayName   string                       `json:"displayName"`
	CanSendMic    bool                         `json:"canSendMic"`
	CanSendCam    bool                         `json:"canSendCam"`
	AudioOnly     bool                         `json:"audioOnly"`
	AudioOnlyBusy bool                         `json:"audioOnlyInProgress"`
	CamBusy       bool                         `json:"camInProgress"`
	RestartingICE bool                         `json:"restartIceInProgress"`
	Peers         map[domain.PeerID]PeerView   `json:"peers"`
	Producers     map[string]core.ProducerInfo `json:"producers"`
	Consumers     map[string]core.ConsumerInfo `json:"consumers"`
	Notifications []core.Notification          `json:"notifications"`
}

// Store implements core.StoreSink.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

func New() *Store {
	return &Store{
		snap: Snapshot{
			RoomState: core.RoomNew,
			Peers:     make(map[domain.PeerID]PeerView),
			Producers: make(map[string]core.ProducerInfo),
			Consumers: make(map[string]core.ConsumerInfo),
		},
	}
}

func (s *Store) SetRoomState(st core.RoomState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RoomState = st
	if st == core.RoomClosed || st == core.RoomConnecting {
		// Media objects never survive these transitions.
		s.snap.Producers = make(map[string]core.ProducerInfo)
		s.snap.Consumers = make(map[string]core.ConsumerInfo)
		s.snap.Peers = make(map[domain.PeerID]PeerView)
	}
	log.Info().Str("module", "store").Str("state", string(st)).Msg("room state")
}

func (s *Store) Notify(n core.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Notifications = append(s.snap.Notifications, n)
	if len(s.snap.Notifications) > maxNotifications {
		s.snap.Notifications = s.snap.Notifications[len(s.snap.Notifications)-maxNotifications:]
	}
	log.Info().Str("module", "store").Str("severity", string(n.Severity)).Str("text", n.Text).Msg("notify")
}

func (s *Store) AddPeer(p domain.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Peers[p.ID] = PeerView{Peer: p}
}

func (s *Store) RemovePeer(id domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Peers, id)
}

func (s *Store) SetPeerDisplayName(id domain.PeerID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pv, ok := s.snap.Peers[id]; ok {
		pv.DisplayName = name
		s.snap.Peers[id] = pv
	}
}

func (s *Store) SetPeerVolume(id domain.PeerID, volume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pv, ok := s.snap.Peers[id]; ok {
		pv.Volume = volume
		s.snap.Peers[id] = pv
	}
}

func (s *Store) AddProducer(p core.ProducerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Producers[p.ID] = p
}

func (s *Store) RemoveProducer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Producers, id)
}

func (s *Store) SetProducerPaused(id string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.snap.Producers[id]; ok {
		p.Paused = paused
		s.snap.Producers[id] = p
	}
}

func (s *Store) AddConsumer(c core.ConsumerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Consumers[c.ID] = c
}

func (s *Store) RemoveConsumer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Consumers, id)
}

func (s *Store) SetConsumerPaused(id string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.snap.Consumers[id]; ok {
		c.Paused = paused
		s.snap.Consumers[id] = c
	}
}

func (s *Store) SetMediaCapabilities(canSendMic, canSendCam bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CanSendMic = canSendMic
	s.snap.CanSendCam = canSendCam
}

func (s *Store) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.DisplayName = name
}

func (s *Store) SetAudioOnly(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AudioOnly = enabled
}

func (s *Store) SetAudioOnlyInProgress(inProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AudioOnlyBusy = inProgress
}

func (s *Store) SetCamInProgress(inProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CamBusy = inProgress
}

func (s *Store) SetRestartICEInProgress(inProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RestartingICE = inProgress
}

// Snapshot returns a deep copy for the HTTP API.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Peers = make(map[domain.PeerID]PeerView, len(s.snap.Peers))
	for k, v := range s.snap.Peers {
		out.Peers[k] = v
	}
	out.Producers = make(map[string]core.ProducerInfo, len(s.snap.Producers))
	for k, v := range s.snap.Producers {
		out.Producers[k] = v
	}
	out.Consumers = make(map[string]core.ConsumerInfo, len(s.snap.Consumers))
	for k, v := range s.snap.Consumers {
		out.Consumers[k] = v
	}
	out.Notifications = append([]core.Notification(nil), s.snap.Notifications...)
	return out
}
