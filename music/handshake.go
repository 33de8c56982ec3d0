package music

import (
	"encoding/json"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// VoiceUpdate is the assembled voice-handshake payload forwarded to the
// relay. All four fields must be present before it may be dispatched.
type VoiceUpdate struct {
	Op        string          `json:"op"`
	GuildID   string          `json:"guildId"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

func (v *VoiceUpdate) complete() bool {
	return v.Op != "" && v.GuildID != "" && v.SessionID != "" && len(v.Event) > 0
}

// VoiceDispatcher is the relay endpoint a completed handshake is sent to.
type VoiceDispatcher interface {
	DispatchVoiceUpdate(VoiceUpdate) error
}

// Synchronizer collects the two voice-handshake fragments per guild. The
// gateway delivers a voice-server assignment and the bot's own voice-state
// session id independently and in no guaranteed order; once both have been
// merged the payload is dispatched exactly once and the guild's state is
// cleared, so a reconnect starts a fresh cycle.
type Synchronizer struct {
	mu      sync.Mutex
	pending map[string]*VoiceUpdate
	relay   VoiceDispatcher
}

func NewSynchronizer(relay VoiceDispatcher) *Synchronizer {
	return &Synchronizer{
		pending: make(map[string]*VoiceUpdate),
		relay:   relay,
	}
}

// ServerUpdate merges a voice-server assignment event for a guild.
func (sy *Synchronizer) ServerUpdate(guildID string, event json.RawMessage) {
	sy.merge(guildID, func(v *VoiceUpdate) {
		v.Op = "voiceUpdate"
		v.GuildID = guildID
		v.Event = event
	})
}

// SessionUpdate merges the bot's own voice session id for a guild.
func (sy *Synchronizer) SessionUpdate(guildID, sessionID string) {
	sy.merge(guildID, func(v *VoiceUpdate) {
		v.SessionID = sessionID
	})
}

// Reset discards any partial handshake state for a guild. Used when the
// voice connection is released so stale fragments never leak into the next
// cycle.
func (sy *Synchronizer) Reset(guildID string) {
	sy.mu.Lock()
	delete(sy.pending, guildID)
	sy.mu.Unlock()
}

func (sy *Synchronizer) merge(guildID string, apply func(*VoiceUpdate)) {
	sy.mu.Lock()
	v := sy.pending[guildID]
	if v == nil {
		v = &VoiceUpdate{}
		sy.pending[guildID] = v
	}
	apply(v)

	if !v.complete() {
		sy.mu.Unlock()
		return
	}

	// Take the payload and clear under the lock so a given complete set is
	// dispatched at most once.
	payload := *v
	delete(sy.pending, guildID)
	sy.mu.Unlock()

	if err := sy.relay.DispatchVoiceUpdate(payload); err != nil {
		zlog.Warn().Err(err).Str("guild", guildID).Msg("[voice] handshake dispatch failed")
	}
}
