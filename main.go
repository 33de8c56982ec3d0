package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"jukebox-bot/bot"
	"jukebox-bot/config"
	"jukebox-bot/handlers"
	"jukebox-bot/lang"
	"jukebox-bot/logger"
	"jukebox-bot/music"
	"jukebox-bot/notify"
	"jukebox-bot/prompt"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to config file")
	cleanup := flag.Bool("cleanup", false, "Remove slash commands on shutdown")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	logCfg := logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level, File: cfg.Log.File}
	if err := logger.Init(logCfg); err != nil {
		zlog.Fatal().Msgf("Failed to init logger: %v", err)
	}

	lang.Load(cfg.LangPath)

	b, err := bot.New(cfg)
	if err != nil {
		zlog.Fatal().Msgf("Failed to create bot: %v", err)
	}

	handlers.Cfg = cfg
	handlers.Register(b.Session)

	if err := b.Start(); err != nil {
		zlog.Fatal().Msgf("Failed to start bot: %v", err)
	}
	defer b.Stop()

	b.WaitReady()

	relay, err := music.NewLavalinkRelay(&cfg.Lavalink, b.Session.State.User.ID)
	if err != nil {
		zlog.Error().Msgf("Music relay init failed: %v", err)
		zlog.Info().Msg("Music commands will show an error. Fix the issue and restart.")
	} else {
		var notifier music.Notifier
		if cfg.Notify.URL != "" {
			pub, err := notify.New(cfg.Notify.URL, cfg.Notify.Exchange)
			if err != nil {
				zlog.Warn().Msgf("AMQP notifier disabled: %v", err)
			} else {
				notifier = pub
				defer pub.Close()
			}
		}

		sy := music.NewSynchronizer(relay)
		mgr := music.NewManager(relay, music.NewSessionGateway(b.Session), sy, &cfg.Music, notifier)
		relay.SetSink(mgr)
		defer mgr.Shutdown()

		handlers.Mgr = mgr
		handlers.Prompts = prompt.NewManager(&handlers.ReactionPresenter{S: b.Session})

		b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
			if s.State != nil && s.State.User != nil && e.UserID == s.State.User.ID {
				sy.SessionUpdate(e.GuildID, e.SessionID)
			}
		})

		b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.VoiceServerUpdate) {
			raw, err := json.Marshal(map[string]string{
				"token":    e.Token,
				"guild_id": e.GuildID,
				"endpoint": e.Endpoint,
			})
			if err != nil {
				return
			}
			sy.ServerUpdate(e.GuildID, raw)
		})
	}

	registered := b.RegisterCommands(handlers.Commands())

	zlog.Info().Msg("Bot is running. Press Ctrl+C to exit.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zlog.Info().Msg("Shutting down...")
	if *cleanup {
		b.CleanupCommands(registered)
	}
}
