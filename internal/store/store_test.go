package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmesh/roomclient/internal/core"
	"github.com/voxmesh/roomclient/internal/domain"
)

func TestSnapshotIsIsolated(t *testing.T) {
	s := New()
	s.AddPeer(domain.Peer{ID: "p1", DisplayName: "Alice"})
	s.AddProducer(core.ProducerInfo{ID: "prod1", Kind: core.KindAudio})
	s.Notify(core.Notification{Severity: core.SeverityInfo, Text: "hello"})

	snap := s.Snapshot()

	// Mutating the snapshot must not leak back into the store.
	snap.Peers["p2"] = PeerView{Peer: domain.Peer{ID: "p2"}}
	delete(snap.Producers, "prod1")
	snap.Notifications[0].Text = "tampered"

	fresh := s.Snapshot()
	assert.Len(t, fresh.Peers, 1)
	assert.Contains(t, fresh.Producers, "prod1")
	assert.Equal(t, "hello", fresh.Notifications[0].Text)
}

func TestPeerAttributes(t *testing.T) {
	s := New()
	s.AddPeer(domain.Peer{ID: "p1", DisplayName: "Alice"})

	s.SetPeerDisplayName("p1", "Alicia")
	s.SetPeerVolume("p1", -30)
	// Unknown peers are ignored, not created.
	s.SetPeerDisplayName("ghost", "Boo")
	s.SetPeerVolume("ghost", -10)

	snap := s.Snapshot()
	require.Len(t, snap.Peers, 1)
	assert.Equal(t, "Alicia", snap.Peers["p1"].DisplayName)
	assert.Equal(t, -30, snap.Peers["p1"].Volume)
}

func TestPausedFlags(t *testing.T) {
	s := New()
	s.AddProducer(core.ProducerInfo{ID: "prod1", Kind: core.KindAudio})
	s.AddConsumer(core.ConsumerInfo{ID: "cons1", PeerID: "p1", Kind: core.KindVideo})

	s.SetProducerPaused("prod1", true)
	s.SetConsumerPaused("cons1", true)
	s.SetProducerPaused("ghost", true)
	s.SetConsumerPaused("ghost", true)

	snap := s.Snapshot()
	assert.True(t, snap.Producers["prod1"].Paused)
	assert.True(t, snap.Consumers["cons1"].Paused)
	assert.Len(t, snap.Producers, 1)
	assert.Len(t, snap.Consumers, 1)
}

func TestStateTransitionClearsMedia(t *testing.T) {
	for _, st := range []core.RoomState{core.RoomConnecting, core.RoomClosed} {
		t.Run(string(st), func(t *testing.T) {
			s := New()
			s.SetRoomState(core.RoomConnected)
			s.AddPeer(domain.Peer{ID: "p1"})
			s.AddProducer(core.ProducerInfo{ID: "prod1", Kind: core.KindAudio})
			s.AddConsumer(core.ConsumerInfo{ID: "cons1", PeerID: "p1", Kind: core.KindAudio})
			s.SetDisplayName("Me")

			s.SetRoomState(st)

			snap := s.Snapshot()
			assert.Equal(t, st, snap.RoomState)
			assert.Empty(t, snap.Peers)
			assert.Empty(t, snap.Producers)
			assert.Empty(t, snap.Consumers)
			// Identity survives the transition.
			assert.Equal(t, "Me", snap.DisplayName)
		})
	}
}

func TestNotificationHistoryBounded(t *testing.T) {
	s := New()
	for i := 0; i < maxNotifications+25; i++ {
		s.Notify(core.Notification{Severity: core.SeverityInfo, Text: fmt.Sprintf("n%d", i)})
	}

	snap := s.Snapshot()
	require.Len(t, snap.Notifications, maxNotifications)
	// Oldest entries are dropped first.
	assert.Equal(t, "n25", snap.Notifications[0].Text)
	assert.Equal(t, fmt.Sprintf("n%d", maxNotifications+24), snap.Notifications[maxNotifications-1].Text)
}
