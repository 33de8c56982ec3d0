package music

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"jukebox-bot/config"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// EventSink receives relay-side playback events read off the websocket.
type EventSink interface {
	OnTrackEnd(guildID, reason string)
	OnPlayerUpdate(guildID string, position int64)
}

// LavalinkRelay speaks the Lavalink wire protocol: track lookups over REST,
// player ops and the voice-update dispatch as websocket messages.
type LavalinkRelay struct {
	host     string
	port     int
	password string
	secure   bool
	userID   string

	wsMu sync.Mutex
	ws   *websocket.Conn

	sinkMu sync.RWMutex
	sink   EventSink

	client *http.Client
}

func NewLavalinkRelay(cfg *config.LavalinkConfig, botUserID string) (*LavalinkRelay, error) {
	l := &LavalinkRelay{
		host:     cfg.Host,
		port:     cfg.Port,
		password: cfg.Password,
		secure:   cfg.Secure,
		userID:   botUserID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}

	var pingErr error
	for attempt := 1; attempt <= 15; attempt++ {
		pingErr = l.ping()
		if pingErr == nil {
			break
		}
		zlog.Info().Msgf("[Lavalink] waiting for server at %s:%d (attempt %d/15): %v", cfg.Host, cfg.Port, attempt, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		return nil, errors.Wrapf(pingErr, "cannot reach Lavalink at %s:%d after 30s", cfg.Host, cfg.Port)
	}

	if err := l.connectWS(); err != nil {
		return nil, errors.Wrap(err, "lavalink websocket connect")
	}
	return l, nil
}

// SetSink installs the consumer of relay playback events.
func (l *LavalinkRelay) SetSink(sink EventSink) {
	l.sinkMu.Lock()
	l.sink = sink
	l.sinkMu.Unlock()
}

func (l *LavalinkRelay) baseURL() string {
	scheme := "http"
	if l.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, l.host, l.port)
}

func (l *LavalinkRelay) wsURL() string {
	scheme := "ws"
	if l.secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, l.host, l.port)
}

func (l *LavalinkRelay) ping() error {
	req, _ := http.NewRequest("GET", l.baseURL()+"/version", nil)
	req.Header.Set("Authorization", l.password)

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return errors.Newf("Lavalink returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (l *LavalinkRelay) connectWS() error {
	headers := http.Header{}
	headers.Set("Authorization", l.password)
	headers.Set("User-Id", l.userID)
	headers.Set("Num-Shards", "1")
	headers.Set("Client-Name", "jukebox-bot")

	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.Dial(l.wsURL(), headers)
	if err != nil {
		return errors.Wrapf(err, "ws dial %s", l.wsURL())
	}

	l.wsMu.Lock()
	oldConn := l.ws
	l.ws = conn
	l.wsMu.Unlock()

	if oldConn != nil {
		_ = oldConn.Close()
	}

	zlog.Info().Msgf("[Lavalink] WS connected to %s", l.wsURL())

	go l.readLoop(conn)
	return nil
}

func (l *LavalinkRelay) readLoop(myConn *websocket.Conn) {
	for {
		l.wsMu.Lock()
		currentConn := l.ws
		l.wsMu.Unlock()
		if currentConn != myConn {
			return
		}

		_, msg, err := myConn.ReadMessage()
		if err == nil {
			l.handleEvent(msg)
			continue
		}

		l.wsMu.Lock()
		if l.ws == myConn {
			l.ws = nil
		}
		l.wsMu.Unlock()

		_ = myConn.Close()
		zlog.Warn().Msgf("[Lavalink] WS disconnected: %v", err)

		for attempt := 1; attempt <= 10; attempt++ {
			time.Sleep(time.Duration(attempt) * time.Second)
			if err := l.connectWS(); err == nil {
				return
			}
			zlog.Warn().Msgf("[Lavalink] reconnect attempt %d failed", attempt)
		}
		zlog.Error().Msg("[Lavalink] gave up reconnecting after 10 attempts")
		return
	}
}

func (l *LavalinkRelay) handleEvent(msg []byte) {
	var ev struct {
		Op      string `json:"op"`
		Type    string `json:"type"`
		GuildID string `json:"guildId"`
		Reason  string `json:"reason"`
		State   struct {
			Position int64 `json:"position"`
		} `json:"state"`
		Exception *struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"exception"`
		Code     int  `json:"code"`
		ByRemote bool `json:"byRemote"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return
	}

	switch ev.Op {
	case "event":
		switch ev.Type {
		case "TrackStartEvent":
			zlog.Debug().Msgf("[Lavalink] TrackStart (guild=%s)", ev.GuildID)

		case "TrackEndEvent":
			zlog.Debug().Msgf("[Lavalink] TrackEnd reason=%s (guild=%s)", ev.Reason, ev.GuildID)
			l.sinkMu.RLock()
			sink := l.sink
			l.sinkMu.RUnlock()
			if sink != nil {
				sink.OnTrackEnd(ev.GuildID, ev.Reason)
			}

		case "TrackExceptionEvent":
			excMsg := "(no details)"
			if ev.Exception != nil {
				excMsg = ev.Exception.Message
			}
			zlog.Warn().Msgf("[Lavalink] TrackException: %s (guild=%s)", excMsg, ev.GuildID)

		case "WebSocketClosedEvent":
			zlog.Warn().Msgf("[Lavalink] WebSocketClosed: code=%d byRemote=%v (guild=%s)", ev.Code, ev.ByRemote, ev.GuildID)

		default:
			zlog.Debug().Msgf("[Lavalink] event: type=%s guild=%s", ev.Type, ev.GuildID)
		}

	case "playerUpdate":
		l.sinkMu.RLock()
		sink := l.sink
		l.sinkMu.RUnlock()
		if sink != nil {
			sink.OnPlayerUpdate(ev.GuildID, ev.State.Position)
		}

	case "stats":
	default:
		zlog.Debug().Msgf("[Lavalink] ws op=%s", ev.Op)
	}
}

// send marshals and writes one op message on the websocket.
func (l *LavalinkRelay) send(payload any) error {
	l.wsMu.Lock()
	defer l.wsMu.Unlock()
	if l.ws == nil {
		return errors.New("lavalink websocket not connected")
	}
	return l.ws.WriteJSON(payload)
}

func isHTTP(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

type lavalinkTrack struct {
	Track string `json:"track"`
	Info  struct {
		Title    string `json:"title"`
		URI      string `json:"uri"`
		Length   int64  `json:"length"`
		IsStream bool   `json:"isStream"`
	} `json:"info"`
}

func (t *lavalinkTrack) toTrack() *Track {
	return &Track{
		Title:    t.Info.Title,
		URI:      t.Info.URI,
		Encoded:  t.Track,
		Duration: t.Info.Length,
		Stream:   t.Info.IsStream,
	}
}

// LoadTracks resolves a query to an ordered candidate list. Bare terms are
// sent through a ytsearch lookup; URLs go through as-is and may resolve to a
// playlist.
func (l *LavalinkRelay) LoadTracks(query string) (*LoadResult, error) {
	q := strings.Trim(strings.TrimSpace(query), "<>")
	if q == "" {
		return nil, errors.New("empty query")
	}

	identifier := q
	if !isHTTP(q) {
		identifier = "ytsearch:" + q
	}

	u := fmt.Sprintf("%s/loadtracks?identifier=%s", l.baseURL(), url.QueryEscape(identifier))
	req, _ := http.NewRequest("GET", u, nil)
	req.Header.Set("Authorization", l.password)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "lavalink loadtracks")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var result struct {
		LoadType     string `json:"loadType"`
		PlaylistInfo struct {
			Name string `json:"name"`
		} `json:"playlistInfo"`
		Tracks []lavalinkTrack `json:"tracks"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "lavalink parse")
	}

	tracks := make([]*Track, 0, len(result.Tracks))
	for i := range result.Tracks {
		tracks = append(tracks, result.Tracks[i].toTrack())
	}

	switch result.LoadType {
	case "TRACK_LOADED", "SEARCH_RESULT":
		if len(tracks) == 0 {
			return nil, errors.Wrapf(ErrNoResults, "%s", query)
		}
		return &LoadResult{Tracks: tracks}, nil

	case "PLAYLIST_LOADED":
		if len(tracks) == 0 {
			return nil, errors.New("empty playlist")
		}
		return &LoadResult{Tracks: tracks, Playlist: true, PlaylistName: result.PlaylistInfo.Name}, nil

	case "NO_MATCHES":
		return nil, errors.Wrapf(ErrNoResults, "%s", query)

	case "LOAD_FAILED":
		return nil, errors.New("lavalink error loading track")

	default:
		return nil, errors.Newf("unknown loadType: %s", result.LoadType)
	}
}

func (l *LavalinkRelay) Play(guildID string, t *Track) error {
	return l.send(map[string]any{
		"op":      "play",
		"guildId": guildID,
		"track":   t.Encoded,
	})
}

func (l *LavalinkRelay) Stop(guildID string) error {
	return l.send(map[string]any{
		"op":      "stop",
		"guildId": guildID,
	})
}

func (l *LavalinkRelay) Destroy(guildID string) error {
	return l.send(map[string]any{
		"op":      "destroy",
		"guildId": guildID,
	})
}

func (l *LavalinkRelay) Pause(guildID string, paused bool) error {
	return l.send(map[string]any{
		"op":      "pause",
		"guildId": guildID,
		"pause":   paused,
	})
}

func (l *LavalinkRelay) SetVolume(guildID string, volume int) error {
	return l.send(map[string]any{
		"op":      "volume",
		"guildId": guildID,
		"volume":  volume,
	})
}

// DispatchVoiceUpdate forwards an assembled voice handshake to the relay.
func (l *LavalinkRelay) DispatchVoiceUpdate(v VoiceUpdate) error {
	zlog.Debug().Msgf("[Lavalink] voiceUpdate dispatch (guild=%s, session=%s)", v.GuildID, truncate(v.SessionID, 12))
	return l.send(&v)
}

func (l *LavalinkRelay) Close() {
	l.wsMu.Lock()
	if l.ws != nil {
		_ = l.ws.Close()
		l.ws = nil
	}
	l.wsMu.Unlock()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
