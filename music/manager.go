package music

import (
	"sync"
	"time"

	"jukebox-bot/config"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"
)

// Relay is the audio backend the orchestrator drives. One player per guild
// lives on the relay side; every call is addressed by guild id.
type Relay interface {
	LoadTracks(query string) (*LoadResult, error)
	Play(guildID string, t *Track) error
	Stop(guildID string) error
	Destroy(guildID string) error
	Pause(guildID string, paused bool) error
	SetVolume(guildID string, volume int) error
	DispatchVoiceUpdate(VoiceUpdate) error
	Close()
}

// LoadResult is what a relay track lookup yields: an ordered candidate list,
// and whether the query resolved to a whole playlist.
type LoadResult struct {
	Tracks       []*Track
	Playlist     bool
	PlaylistName string
}

// VoiceGateway issues voice-channel join/leave requests against the chat
// gateway. Joining triggers the handshake events the Synchronizer merges.
type VoiceGateway interface {
	JoinVoice(guildID, channelID string) error
	LeaveVoice(guildID string) error
}

// Notifier receives playback lifecycle events. A nil notifier disables
// publishing.
type Notifier interface {
	PlaybackEvent(event, guildID string, t *Track)
}

// Manager is the per-guild player registry. It is the only shared mutable
// state; each entry is owned by its guild.
type Manager struct {
	mu      sync.RWMutex
	players map[string]*Player

	relay    Relay
	gateway  VoiceGateway
	sync     *Synchronizer
	notifier Notifier
	cfg      *config.MusicConfig
}

func NewManager(relay Relay, gateway VoiceGateway, sy *Synchronizer, cfg *config.MusicConfig, notifier Notifier) *Manager {
	return &Manager{
		players:  make(map[string]*Player),
		relay:    relay,
		gateway:  gateway,
		sync:     sy,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Player returns the guild's player, creating it on first use.
func (m *Manager) Player(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[guildID]
	if !ok {
		p = &Player{
			guildID:   guildID,
			volume:    m.cfg.DefaultVolume,
			relay:     m.relay,
			gateway:   m.gateway,
			sync:      m.sync,
			notifier:  m.notifier,
			maxQueue:  m.cfg.MaxQueueSize,
			fadeDelay: time.Duration(m.cfg.FadeStepMs) * time.Millisecond,
		}
		m.players[guildID] = p
	}
	return p
}

// LoadTracks resolves a query through the relay.
func (m *Manager) LoadTracks(query string) (*LoadResult, error) {
	return m.relay.LoadTracks(query)
}

// OnTrackEnd routes a relay track-end event to the owning player.
func (m *Manager) OnTrackEnd(guildID, reason string) {
	m.mu.RLock()
	p := m.players[guildID]
	m.mu.RUnlock()
	if p == nil {
		return
	}
	p.onTrackEnd(reason)
}

// OnPlayerUpdate routes a relay position report to the owning player.
func (m *Manager) OnPlayerUpdate(guildID string, position int64) {
	m.mu.RLock()
	p := m.players[guildID]
	m.mu.RUnlock()
	if p == nil {
		return
	}
	p.setPosition(position)
}

// Shutdown stops every player and closes the relay connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	for _, p := range players {
		if err := p.Stop(); err != nil {
			zlog.Debug().Err(err).Str("guild", p.guildID).Msg("[music] shutdown stop")
		}
	}
	m.relay.Close()
}

// sessionGateway adapts a discordgo session to the VoiceGateway interface.
// The op4 join is issued manually so the gateway never opens its own voice
// websocket; the relay owns the audio path.
type sessionGateway struct {
	s *discordgo.Session
}

func NewSessionGateway(s *discordgo.Session) VoiceGateway {
	return &sessionGateway{s: s}
}

func (g *sessionGateway) JoinVoice(guildID, channelID string) error {
	return g.s.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

func (g *sessionGateway) LeaveVoice(guildID string) error {
	return g.s.ChannelVoiceJoinManual(guildID, "", false, true)
}

// GetVoiceChannelOfUser reports which voice channel a member currently
// occupies, or empty when they are not in one.
func GetVoiceChannelOfUser(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
