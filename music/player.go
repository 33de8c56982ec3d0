package music

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Error taxonomy surfaced to the command layer. Handlers translate these
// into short status messages; none of them terminates a session.
var (
	ErrNothingPlaying = errors.New("nothing playing")
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrBadVolume      = errors.New("volume must be between 0 and 100")
	ErrQueueFull      = errors.New("queue is full")
	ErrNoResults      = errors.New("no results found")
)

// Playback event names published to the notifier.
const (
	EventTrackStarted  = "track_started"
	EventTrackEnqueued = "track_enqueued"
	EventTrackSkipped  = "track_skipped"
	EventStopped       = "stopped"
	EventDisconnected  = "disconnected"
)

const (
	fadeStep  = 5
	fadeFloor = 10
)

// Player holds the playback state for one guild: the track queue, the track
// currently streaming, and the knobs the relay mirrors. Exclusively owned by
// its guild; the Manager hands out one instance per guild id.
type Player struct {
	mu      sync.Mutex
	guildID string

	queue    []*Track
	current  *Track
	position int64
	duration int64
	paused   bool
	volume   int
	shuffle  bool

	connected bool
	channelID string

	relay    Relay
	gateway  VoiceGateway
	sync     *Synchronizer
	notifier Notifier

	maxQueue  int
	fadeDelay time.Duration
}

// Enqueue appends a track. When autoplayIfIdle is set and nothing is
// streaming, playback starts immediately with the queue head. Returns the
// 1-based queue position and whether playback was started.
func (p *Player) Enqueue(t *Track, autoplayIfIdle bool) (int, bool, error) {
	p.mu.Lock()
	if p.maxQueue > 0 && len(p.queue) >= p.maxQueue {
		n := len(p.queue)
		p.mu.Unlock()
		return 0, false, errors.Wrapf(ErrQueueFull, "%d/%d tracks", n, p.maxQueue)
	}
	p.queue = append(p.queue, t)
	pos := len(p.queue)
	idle := p.current == nil
	p.mu.Unlock()

	if autoplayIfIdle && idle {
		return pos, true, p.playNext()
	}
	if p.notifier != nil {
		p.notifier.PlaybackEvent(EventTrackEnqueued, p.guildID, t)
	}
	return pos, false, nil
}

// Clear empties the queue. The current track keeps streaming.
func (p *Player) Clear() int {
	p.mu.Lock()
	n := len(p.queue)
	p.queue = nil
	p.mu.Unlock()
	return n
}

// SetPaused pauses or resumes the current track. A reported no-op when
// nothing is streaming.
func (p *Player) SetPaused(paused bool) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	p.paused = paused
	p.mu.Unlock()
	return p.relay.Pause(p.guildID, paused)
}

// SetVolume validates and applies a new volume. Valid only while a track is
// streaming; values outside [0,100] are rejected without mutating state.
func (p *Player) SetVolume(v int) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	if v < 0 || v > 100 {
		p.mu.Unlock()
		return ErrBadVolume
	}
	p.volume = v
	p.mu.Unlock()
	return p.relay.SetVolume(p.guildID, v)
}

// ToggleShuffle flips the shuffle flag and reports the new state. While set,
// the next track is drawn from a random queue position instead of the head.
func (p *Player) ToggleShuffle() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false, ErrNothingPlaying
	}
	p.shuffle = !p.shuffle
	return p.shuffle, nil
}

// Skip discards the current track and advances to the next queued one. When
// connected, the volume is ramped down across the boundary and back up
// afterwards so the transition fades instead of cutting.
func (p *Player) Skip() (*Track, error) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil, ErrNothingPlaying
	}
	skipped := p.current
	connected := p.connected
	vol := p.volume
	p.mu.Unlock()

	rampBack := 0
	if connected {
		rampBack = p.fadeDown(vol)
	}
	err := p.playNext()
	if connected {
		p.fadeUp(rampBack, vol)
	}

	if p.notifier != nil {
		p.notifier.PlaybackEvent(EventTrackSkipped, p.guildID, skipped)
	}
	return skipped, err
}

// fadeDown ramps the relay volume in decrements of fadeStep until it is at
// or below fadeFloor, returning where the ramp stopped. A starting volume
// already at the floor produces no steps.
func (p *Player) fadeDown(from int) int {
	v := from
	for v > fadeFloor {
		v -= fadeStep
		if v < 0 {
			v = 0
		}
		_ = p.relay.SetVolume(p.guildID, v)
		if p.fadeDelay > 0 {
			time.Sleep(p.fadeDelay)
		}
	}
	return v
}

// fadeUp ramps the relay volume back from the fade floor to the captured
// pre-skip level.
func (p *Player) fadeUp(from, target int) {
	v := from
	for v < target {
		v += fadeStep
		if v > target {
			v = target
		}
		_ = p.relay.SetVolume(p.guildID, v)
		if p.fadeDelay > 0 {
			time.Sleep(p.fadeDelay)
		}
	}
}

// Stop ends playback and drops the queue. The voice connection stays up.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.current == nil && len(p.queue) == 0 {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	stopped := p.current
	p.queue = nil
	p.current = nil
	p.paused = false
	p.position = 0
	p.duration = 0
	p.mu.Unlock()

	if p.notifier != nil && stopped != nil {
		p.notifier.PlaybackEvent(EventStopped, p.guildID, stopped)
	}
	return p.relay.Stop(p.guildID)
}

// Connect joins a voice channel through the gateway. Rejoining the channel
// the player already occupies is a no-op.
func (p *Player) Connect(channelID string) error {
	p.mu.Lock()
	if p.connected && p.channelID == channelID {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.gateway.JoinVoice(p.guildID, channelID); err != nil {
		return errors.Wrap(err, "voice join")
	}

	p.mu.Lock()
	p.connected = true
	p.channelID = channelID
	p.mu.Unlock()
	return nil
}

// Disconnect releases the voice connection and all per-guild playback
// state. Partial handshake fragments are discarded so a later reconnect
// starts a clean cycle.
func (p *Player) Disconnect() error {
	p.mu.Lock()
	connected := p.connected
	p.queue = nil
	p.current = nil
	p.paused = false
	p.position = 0
	p.duration = 0
	p.connected = false
	p.channelID = ""
	p.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	_ = p.relay.Destroy(p.guildID)
	p.sync.Reset(p.guildID)

	if p.notifier != nil {
		p.notifier.PlaybackEvent(EventDisconnected, p.guildID, nil)
	}
	return p.gateway.LeaveVoice(p.guildID)
}

// playNext dequeues and starts the next track, or stops the relay player
// when the queue is empty. With shuffle set the track is drawn from a random
// queue index.
func (p *Player) playNext() error {
	p.mu.Lock()
	var next *Track
	if len(p.queue) > 0 {
		idx := 0
		if p.shuffle {
			idx = rand.Intn(len(p.queue))
		}
		next = p.queue[idx]
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
	}
	p.current = next
	p.paused = false
	p.position = 0
	if next != nil {
		p.duration = next.Duration
	} else {
		p.duration = 0
	}
	p.mu.Unlock()

	if next == nil {
		return p.relay.Stop(p.guildID)
	}

	if err := p.relay.Play(p.guildID, next); err != nil {
		return errors.Wrapf(err, "play %q", next.Title)
	}
	if p.notifier != nil {
		p.notifier.PlaybackEvent(EventTrackStarted, p.guildID, next)
	}
	return nil
}

// onTrackEnd advances the queue when the relay reports a natural end.
// Replaced or stopped tracks were advanced by whoever replaced them.
func (p *Player) onTrackEnd(reason string) {
	switch reason {
	case "FINISHED", "LOAD_FAILED":
		_ = p.playNext()
	}
}

func (p *Player) setPosition(position int64) {
	p.mu.Lock()
	p.position = position
	p.mu.Unlock()
}

// Status is a consistent snapshot of the player for rendering.
type Status struct {
	Current   *Track
	Queue     []*Track
	Position  int64
	Duration  int64
	Paused    bool
	Shuffle   bool
	Connected bool
	Volume    int
}

// Status returns a copy of the player state; the queue slice is detached.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := make([]*Track, len(p.queue))
	copy(q, p.queue)
	return Status{
		Current:   p.current,
		Queue:     q,
		Position:  p.position,
		Duration:  p.duration,
		Paused:    p.paused,
		Shuffle:   p.shuffle,
		Connected: p.connected,
		Volume:    p.volume,
	}
}
