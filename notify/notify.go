// Package notify publishes playback lifecycle events to an AMQP topic
// exchange. The publisher is optional; without a broker URL the orchestrator
// runs with a nil notifier and nothing is published.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"jukebox-bot/music"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	zlog "github.com/rs/zerolog/log"
)

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func New(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "amqp dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "amqp channel")
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	zlog.Info().Msgf("[notify] AMQP publisher ready (exchange=%s)", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

type eventBody struct {
	Event       string `json:"event"`
	GuildID     string `json:"guild_id"`
	Title       string `json:"title,omitempty"`
	URI         string `json:"uri,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	At          string `json:"at"`
}

// PlaybackEvent publishes one event, routing key "playback.<event>". The
// track may be nil for events that have no subject.
func (p *Publisher) PlaybackEvent(event, guildID string, t *music.Track) {
	body := eventBody{
		Event:   event,
		GuildID: guildID,
		At:      time.Now().UTC().Format(time.RFC3339),
	}
	if t != nil {
		body.Title = t.Title
		body.URI = t.URI
		body.RequesterID = t.RequesterID
		body.DurationMs = t.Duration
	}

	b, err := json.Marshal(body)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, "playback."+event, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
	})
	if err != nil {
		zlog.Warn().Err(err).Msgf("[notify] publish %s failed", event)
	}
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
