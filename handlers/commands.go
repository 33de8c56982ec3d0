package handlers

import (
	"jukebox-bot/config"
	"jukebox-bot/lang"
	"jukebox-bot/music"
	"jukebox-bot/prompt"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"
)

// Set by main before the session opens. Mgr stays nil until the relay is
// reachable; handlers report that instead of crashing.
var (
	Cfg     *config.Config
	Mgr     *music.Manager
	Prompts *prompt.Manager
)

func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name: "play", Description: "Play a song or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "Song name, URL, or playlist URL", Required: true},
			},
		},
		{
			Name: "search", Description: "Search and pick from the top results",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "Song name to search for", Required: true},
			},
		},
		{
			Name: "queue", Description: "Show the song queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "page", Description: "Queue page", Required: false},
			},
		},
		{Name: "now", Description: "Show the current track with playback controls"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "skip", Description: "Skip to the next track"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "shuffle", Description: "Toggle shuffle"},
		{
			Name: "volume", Description: "Show or set the volume (0-100)",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "level", Description: "New volume", Required: false},
			},
		},
		{Name: "clear", Description: "Clear the queue"},
		{Name: "disconnect", Description: "Disconnect from the voice channel"},
	}
}

func Register(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.GuildID == "" || i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		handleSlashCommand(s, i)
	})

	s.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if Prompts == nil {
			return
		}
		if s.State != nil && s.State.User != nil && r.UserID == s.State.User.ID {
			return
		}
		Prompts.HandleResponse(prompt.Response{
			SurfaceID: r.MessageID,
			AuthorID:  r.UserID,
			Token:     r.Emoji.Name,
		})
	})
}

func handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	if Mgr == nil {
		respond(s, i, lang.T("music_init_failed"), true)
		return
	}

	switch name {
	case "play":
		handlePlay(s, i)
	case "search":
		handleSearch(s, i)
	case "queue":
		handleQueue(s, i)
	case "now":
		handleNow(s, i)
	case "pause":
		handlePause(s, i)
	case "resume":
		handleResume(s, i)
	case "skip":
		handleSkip(s, i)
	case "stop":
		handleStop(s, i)
	case "shuffle":
		handleShuffle(s, i)
	case "volume":
		handleVolume(s, i)
	case "clear":
		handleClear(s, i)
	case "disconnect":
		handleDisconnect(s, i)
	default:
		zlog.Warn().Msgf("unknown command: %s", name)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		zlog.Warn().Msgf("failed to respond: %v", err)
	}
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, _ = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
}

// followupEmbed returns the created message so indicator prompts can be
// attached to it.
func followupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) *discordgo.Message {
	msg, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		zlog.Warn().Msgf("failed to send followup embed: %v", err)
		return nil
	}
	return msg
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range i.ApplicationCommandData().Options {
		m[opt.Name] = opt
	}
	return m
}

// ReactionPresenter attaches and clears reaction indicators on messages.
// Implements prompt.Presenter.
type ReactionPresenter struct {
	S *discordgo.Session
}

func (rp *ReactionPresenter) Present(channelID, surfaceID string, tokens []string) error {
	for _, tok := range tokens {
		if err := rp.S.MessageReactionAdd(channelID, surfaceID, tok); err != nil {
			return err
		}
	}
	return nil
}

func (rp *ReactionPresenter) Clear(channelID, surfaceID string) {
	// Cosmetic only, so failures (missing permission, deleted message) are
	// swallowed.
	_ = rp.S.MessageReactionsRemoveAll(channelID, surfaceID)
}
