package handlers

import (
	"fmt"
	"strconv"
	"time"

	"jukebox-bot/lang"
	"jukebox-bot/music"
	"jukebox-bot/prompt"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	colorPlaying = 0x1DB954
	colorQueued  = 0x5865F2
)

// Control panel actions for the now-playing prompt. Back is a deliberate
// placeholder with no runtime action.
type panelAction int

const (
	panelBack panelAction = iota
	panelStop
	panelPause
	panelPlay
	panelNext
)

var panelTokens = []string{"⏮", "⏹", "⏸", "▶", "⏭"}

var panelActions = map[string]panelAction{
	"⏮": panelBack,
	"⏹": panelStop,
	"⏸": panelPause,
	"▶": panelPlay,
	"⏭": panelNext,
}

// Search picker tokens map straight to result indexes.
var pickTokens = []string{"1⃣", "2⃣", "3⃣", "4⃣", "5⃣"}

var pickIndex = map[string]int{
	"1⃣": 0,
	"2⃣": 1,
	"3⃣": 2,
	"4⃣": 3,
	"5⃣": 4,
}

func promptTimeout() time.Duration {
	return time.Duration(Cfg.Music.PromptTimeoutSec) * time.Second
}

func trackLine(t *music.Track) string {
	return fmt.Sprintf("[**%s**](%s)", t.Title, t.URI)
}

func handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionMap(i)["query"].StringValue()
	requester := i.Member.User.ID

	voiceCh := music.GetVoiceChannelOfUser(s, i.GuildID, requester)
	if voiceCh == "" {
		respond(s, i, lang.T("music_not_in_vc"), true)
		return
	}

	deferResponse(s, i)

	player := Mgr.Player(i.GuildID)

	res, err := Mgr.LoadTracks(query)
	if err != nil {
		if errors.Is(err, music.ErrNoResults) {
			followup(s, i, lang.T("music_nothing_found"))
		} else {
			followup(s, i, lang.T("music_lookup_failed", "error", err.Error()))
		}
		return
	}

	if err := player.Connect(voiceCh); err != nil {
		followup(s, i, lang.T("music_vc_join_failed", "error", err.Error()))
		return
	}

	if res.Playlist {
		count := 0
		for _, rt := range res.Tracks {
			t := *rt
			t.RequesterID = requester
			if _, _, err := player.Enqueue(&t, true); err != nil {
				break
			}
			count++
		}
		followupEmbed(s, i, &discordgo.MessageEmbed{
			Title:       lang.T("music_playlist_enqueued_title"),
			Description: lang.T("music_playlist_enqueued_desc", "count", strconv.Itoa(count), "name", res.PlaylistName),
			Color:       colorQueued,
		})
		return
	}

	t := *res.Tracks[0]
	t.RequesterID = requester

	pos, started, err := player.Enqueue(&t, true)
	if err != nil {
		if errors.Is(err, music.ErrQueueFull) {
			followup(s, i, lang.T("music_queue_full", "error", err.Error()))
		} else {
			followup(s, i, lang.T("music_play_failed", "error", err.Error()))
		}
		return
	}

	if started {
		followupEmbed(s, i, &discordgo.MessageEmbed{
			Title:       lang.T("music_now_playing_title"),
			Description: trackLine(&t),
			Color:       colorPlaying,
		})
	} else {
		followupEmbed(s, i, &discordgo.MessageEmbed{
			Title:       lang.T("music_track_enqueued_title"),
			Description: trackLine(&t) + "\n" + lang.T("music_queue_position", "position", strconv.Itoa(pos)),
			Color:       colorQueued,
		})
	}
}

func handleSearch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionMap(i)["query"].StringValue()
	requester := i.Member.User.ID

	voiceCh := music.GetVoiceChannelOfUser(s, i.GuildID, requester)
	if voiceCh == "" {
		respond(s, i, lang.T("music_not_in_vc"), true)
		return
	}

	deferResponse(s, i)

	player := Mgr.Player(i.GuildID)

	res, err := Mgr.LoadTracks(query)
	if err != nil {
		followup(s, i, lang.T("music_nothing_found"))
		return
	}

	if err := player.Connect(voiceCh); err != nil {
		followup(s, i, lang.T("music_vc_join_failed", "error", err.Error()))
		return
	}

	if res.Playlist {
		// A playlist URL has nothing to disambiguate; import it whole.
		count := 0
		for _, rt := range res.Tracks {
			t := *rt
			t.RequesterID = requester
			if _, _, err := player.Enqueue(&t, true); err != nil {
				break
			}
			count++
		}
		followupEmbed(s, i, &discordgo.MessageEmbed{
			Title: lang.T("music_playlist_imported", "count", strconv.Itoa(count)),
			Color: colorQueued,
		})
		return
	}

	n := Cfg.Music.SearchResults
	if n > len(res.Tracks) {
		n = len(res.Tracks)
	}
	candidates := res.Tracks[:n]

	desc := ""
	for idx, t := range candidates {
		desc += fmt.Sprintf("%d. %s\n", idx+1, trackLine(t))
	}
	msg := followupEmbed(s, i, &discordgo.MessageEmbed{
		Title:       lang.T("music_tracks_found_title"),
		Description: desc,
		Color:       colorQueued,
	})
	if msg == nil {
		return
	}

	token, ok := Prompts.Await(prompt.Prompt{
		ChannelID:   msg.ChannelID,
		SurfaceID:   msg.ID,
		RequesterID: requester,
		Tokens:      pickTokens[:n],
		Timeout:     promptTimeout(),
	})
	if !ok {
		return
	}

	t := *candidates[pickIndex[token]]
	t.RequesterID = requester

	_, started, err := player.Enqueue(&t, true)
	if err != nil {
		_, _ = s.ChannelMessageSend(i.ChannelID, lang.T("music_queue_full", "error", err.Error()))
		return
	}

	title := lang.T("music_track_enqueued_title")
	color := colorQueued
	if started {
		title = lang.T("music_now_playing_title")
		color = colorPlaying
	}
	_, _ = s.ChannelMessageSendEmbed(i.ChannelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: trackLine(&t),
		Color:       color,
	})
}

func handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)
	st := player.Status()

	if len(st.Queue) == 0 && st.Current == nil {
		respond(s, i, lang.T("music_queue_empty"), true)
		return
	}

	page := 1
	if opt, ok := optionMap(i)["page"]; ok {
		page = int(opt.IntValue())
	}

	const perPage = 10
	pages := (len(st.Queue) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	desc := ""
	if st.Current != nil {
		desc += lang.T("music_queue_now_playing", "track", trackLine(st.Current), "requester", mention(st.Current.RequesterID)) + "\n\n"
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > len(st.Queue) {
		end = len(st.Queue)
	}
	for idx := start; idx < end; idx++ {
		t := st.Queue[idx]
		desc += lang.T("music_queue_entry",
			"pos", strconv.Itoa(idx+1),
			"track", trackLine(t),
			"requester", mention(t.RequesterID),
		) + "\n"
	}

	respondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       lang.T("music_queue_title"),
		Description: desc,
		Color:       colorQueued,
		Footer: &discordgo.MessageEmbedFooter{
			Text: lang.T("music_queue_footer", "page", strconv.Itoa(page), "pages", strconv.Itoa(pages)),
		},
	})
}

func handleNow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)
	st := player.Status()

	deferResponse(s, i)

	if st.Current == nil {
		followupEmbed(s, i, &discordgo.MessageEmbed{
			Title:       lang.T("music_now_playing_title"),
			Description: lang.T("music_now_nothing"),
			Color:       colorQueued,
		})
		return
	}

	desc := fmt.Sprintf("%s\n%s\n%s\n(%s/%s)",
		trackLine(st.Current),
		lang.T("music_requested_by", "requester", mention(st.Current.RequesterID)),
		music.ProgressBar(st.Position, st.Duration),
		music.FormatTime(st.Position),
		st.Current.FormatDuration(),
	)

	msg := followupEmbed(s, i, &discordgo.MessageEmbed{
		Title:       lang.T("music_now_playing_title"),
		Description: desc,
		Color:       colorPlaying,
	})
	if msg == nil {
		return
	}

	token, ok := Prompts.Await(prompt.Prompt{
		ChannelID:   msg.ChannelID,
		SurfaceID:   msg.ID,
		RequesterID: i.Member.User.ID,
		Tokens:      panelTokens,
		Timeout:     promptTimeout(),
	})
	if !ok {
		return
	}

	// StateConflict outcomes are deliberately quiet here; the panel is a
	// shortcut, not a reporting surface.
	switch panelActions[token] {
	case panelBack:
	case panelStop:
		if err := player.Stop(); err == nil {
			_, _ = s.ChannelMessageSend(i.ChannelID, lang.T("music_stopped"))
		}
	case panelPause:
		if err := player.SetPaused(true); err == nil {
			_, _ = s.ChannelMessageSend(i.ChannelID, lang.T("music_paused"))
		}
	case panelPlay:
		if player.Status().Paused {
			if err := player.SetPaused(false); err == nil {
				_, _ = s.ChannelMessageSend(i.ChannelID, lang.T("music_resumed"))
			}
		}
	case panelNext:
		if skipped, err := player.Skip(); err == nil && skipped != nil {
			_, _ = s.ChannelMessageSend(i.ChannelID, lang.T("music_skipped", "title", skipped.Title))
		}
	}
}

func handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)

	if err := player.SetPaused(true); err != nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	respond(s, i, lang.T("music_paused"), false)
}

func handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)
	st := player.Status()

	if st.Current == nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	if !st.Paused {
		respond(s, i, lang.T("music_not_paused"), true)
		return
	}
	if err := player.SetPaused(false); err != nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	respond(s, i, lang.T("music_resumed"), false)
}

func handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)

	if player.Status().Current == nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}

	respond(s, i, lang.T("music_skipping"), false)

	skipped, err := player.Skip()
	if err != nil {
		zlog.Debug().Err(err).Str("guild", i.GuildID).Msg("skip")
		return
	}
	followup(s, i, lang.T("music_skipped", "title", skipped.Title))
}

func handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)

	if err := player.Stop(); err != nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	respond(s, i, lang.T("music_stopped"), false)
}

func handleShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)

	on, err := player.ToggleShuffle()
	if err != nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	if on {
		respond(s, i, lang.T("music_shuffle_on"), false)
	} else {
		respond(s, i, lang.T("music_shuffle_off"), false)
	}
}

func handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)
	st := player.Status()

	opt, ok := optionMap(i)["level"]
	if !ok {
		respond(s, i, lang.T("music_volume_show", "level", strconv.Itoa(st.Volume)), false)
		return
	}

	if st.Current == nil {
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}

	level, err := strconv.Atoi(opt.StringValue())
	if err != nil {
		respond(s, i, lang.T("music_volume_nan"), true)
		return
	}

	if err := player.SetVolume(level); err != nil {
		if errors.Is(err, music.ErrBadVolume) {
			respond(s, i, lang.T("music_volume_range"), true)
			return
		}
		respond(s, i, lang.T("music_nothing_playing"), true)
		return
	}
	respond(s, i, lang.T("music_volume_set", "level", strconv.Itoa(level)), false)
}

func handleClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)
	player.Clear()
	respond(s, i, lang.T("music_queue_cleared"), false)
}

func handleDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := Mgr.Player(i.GuildID)

	if err := player.Disconnect(); err != nil {
		respond(s, i, lang.T("music_not_connected"), true)
		return
	}
	respond(s, i, lang.T("music_disconnected"), false)
}

func mention(userID string) string {
	return "<@" + userID + ">"
}
