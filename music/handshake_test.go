package music

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []VoiceUpdate
}

func (f *fakeDispatcher) DispatchVoiceUpdate(v VoiceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, v)
	return nil
}

func (f *fakeDispatcher) all() []VoiceUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]VoiceUpdate, len(f.dispatched))
	copy(out, f.dispatched)
	return out
}

func rawEvent(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"token":    "tok",
		"guild_id": "g1",
		"endpoint": "voice.example.com",
	})
	require.NoError(t, err)
	return raw
}

func TestSynchronizer_DispatchesOnceForEitherOrder(t *testing.T) {
	tests := []struct {
		name  string
		merge func(sy *Synchronizer, ev json.RawMessage)
	}{
		{
			name: "server then session",
			merge: func(sy *Synchronizer, ev json.RawMessage) {
				sy.ServerUpdate("g1", ev)
				sy.SessionUpdate("g1", "sess-1")
			},
		},
		{
			name: "session then server",
			merge: func(sy *Synchronizer, ev json.RawMessage) {
				sy.SessionUpdate("g1", "sess-1")
				sy.ServerUpdate("g1", ev)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &fakeDispatcher{}
			sy := NewSynchronizer(relay)

			tt.merge(sy, rawEvent(t))

			got := relay.all()
			require.Len(t, got, 1)
			assert.Equal(t, "voiceUpdate", got[0].Op)
			assert.Equal(t, "g1", got[0].GuildID)
			assert.Equal(t, "sess-1", got[0].SessionID)
			assert.JSONEq(t, string(rawEvent(t)), string(got[0].Event))
		})
	}
}

func TestSynchronizer_NeverDispatchesPartial(t *testing.T) {
	relay := &fakeDispatcher{}
	sy := NewSynchronizer(relay)

	sy.ServerUpdate("g1", rawEvent(t))
	assert.Empty(t, relay.all())

	sy.SessionUpdate("g2", "sess-other")
	assert.Empty(t, relay.all())
}

func TestSynchronizer_ClearsStateAfterDispatch(t *testing.T) {
	relay := &fakeDispatcher{}
	sy := NewSynchronizer(relay)

	sy.ServerUpdate("g1", rawEvent(t))
	sy.SessionUpdate("g1", "sess-1")
	require.Len(t, relay.all(), 1)

	// A lone fragment after a completed cycle must not re-dispatch with
	// stale data.
	sy.SessionUpdate("g1", "sess-2")
	assert.Len(t, relay.all(), 1)

	// A full second cycle dispatches again with the fresh session id.
	sy.ServerUpdate("g1", rawEvent(t))
	got := relay.all()
	require.Len(t, got, 2)
	assert.Equal(t, "sess-2", got[1].SessionID)
}

func TestSynchronizer_GuildsAreIndependent(t *testing.T) {
	relay := &fakeDispatcher{}
	sy := NewSynchronizer(relay)

	sy.ServerUpdate("g1", rawEvent(t))
	sy.SessionUpdate("g2", "sess-g2")
	assert.Empty(t, relay.all())

	sy.SessionUpdate("g1", "sess-g1")
	got := relay.all()
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].GuildID)
	assert.Equal(t, "sess-g1", got[0].SessionID)
}

func TestSynchronizer_ResetDiscardsFragments(t *testing.T) {
	relay := &fakeDispatcher{}
	sy := NewSynchronizer(relay)

	sy.ServerUpdate("g1", rawEvent(t))
	sy.Reset("g1")
	sy.SessionUpdate("g1", "sess-1")

	assert.Empty(t, relay.all())
}
