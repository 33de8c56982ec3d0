package music

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restRelay wires a relay at an in-process loadtracks endpoint. No websocket
// is connected; only the REST path is exercised.
func restRelay(t *testing.T, handler http.HandlerFunc) (*LavalinkRelay, *string) {
	t.Helper()

	var gotIdentifier string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loadtracks", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("Authorization"))
		gotIdentifier = r.URL.Query().Get("identifier")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &LavalinkRelay{
		host:     host,
		port:     port,
		password: "secret",
		client:   &http.Client{Timeout: 5 * time.Second},
	}, &gotIdentifier
}

func TestLavalinkRelay_LoadTracksSearch(t *testing.T) {
	relay, identifier := restRelay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"loadType": "SEARCH_RESULT",
			"tracks": [
				{"track": "enc1", "info": {"title": "First", "uri": "http://x/1", "length": 180000, "isStream": false}},
				{"track": "enc2", "info": {"title": "Second", "uri": "http://x/2", "length": 0, "isStream": true}}
			]
		}`))
	})

	res, err := relay.LoadTracks("never gonna give you up")
	require.NoError(t, err)

	assert.Equal(t, "ytsearch:never gonna give you up", *identifier)
	assert.False(t, res.Playlist)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, "First", res.Tracks[0].Title)
	assert.Equal(t, "enc1", res.Tracks[0].Encoded)
	assert.Equal(t, int64(180000), res.Tracks[0].Duration)
	assert.True(t, res.Tracks[1].Stream)
}

func TestLavalinkRelay_LoadTracksURLPassthrough(t *testing.T) {
	relay, identifier := restRelay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"loadType": "TRACK_LOADED",
			"tracks": [{"track": "enc", "info": {"title": "Direct", "uri": "https://youtu.be/abc", "length": 60000}}]
		}`))
	})

	// Angle brackets around links suppress chat embeds and are stripped.
	res, err := relay.LoadTracks("<https://youtu.be/abc>")
	require.NoError(t, err)

	assert.Equal(t, "https://youtu.be/abc", *identifier)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, "Direct", res.Tracks[0].Title)
}

func TestLavalinkRelay_LoadTracksPlaylist(t *testing.T) {
	relay, _ := restRelay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"loadType": "PLAYLIST_LOADED",
			"playlistInfo": {"name": "Road Trip"},
			"tracks": [
				{"track": "a", "info": {"title": "One", "length": 1000}},
				{"track": "b", "info": {"title": "Two", "length": 2000}}
			]
		}`))
	})

	res, err := relay.LoadTracks("https://example.com/playlist")
	require.NoError(t, err)

	assert.True(t, res.Playlist)
	assert.Equal(t, "Road Trip", res.PlaylistName)
	assert.Len(t, res.Tracks, 2)
}

func TestLavalinkRelay_LoadTracksNoMatches(t *testing.T) {
	relay, _ := restRelay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"loadType": "NO_MATCHES", "tracks": []}`))
	})

	_, err := relay.LoadTracks("garbage query")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestLavalinkRelay_LoadTracksLoadFailed(t *testing.T) {
	relay, _ := restRelay(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"loadType": "LOAD_FAILED", "tracks": []}`))
	})

	_, err := relay.LoadTracks("https://example.com/broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
}

func TestLavalinkRelay_LoadTracksEmptyQuery(t *testing.T) {
	relay := &LavalinkRelay{client: &http.Client{}}

	_, err := relay.LoadTracks("   ")
	assert.Error(t, err)
}

func TestLavalinkRelay_EventRouting(t *testing.T) {
	sink := &recordingSink{}
	relay := &LavalinkRelay{}
	relay.SetSink(sink)

	relay.handleEvent([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","reason":"FINISHED"}`))
	relay.handleEvent([]byte(`{"op":"playerUpdate","guildId":"g1","state":{"position":42000}}`))
	relay.handleEvent([]byte(`{"op":"stats","players":3}`))
	relay.handleEvent([]byte(`not json`))

	ends, positions := sink.snapshot()
	require.Len(t, ends, 1)
	assert.Equal(t, "g1:FINISHED", ends[0])
	require.Len(t, positions, 1)
	assert.Equal(t, int64(42000), positions[0])
}

type recordingSink struct {
	mu        sync.Mutex
	ends      []string
	positions []int64
}

func (s *recordingSink) OnTrackEnd(guildID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, guildID+":"+reason)
}

func (s *recordingSink) OnPlayerUpdate(guildID string, position int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, position)
}

func (s *recordingSink) snapshot() ([]string, []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ends...), append([]int64(nil), s.positions...)
}
