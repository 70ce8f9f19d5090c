package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
)

// MessagePublisher delivers a framed payload on a station's channel
type MessagePublisher interface {
	Publish(ctx context.Context, station models.StationID, payload []byte) error
}

// Replayer emits the rows of a feed file, one message per station per row,
// waiting interval between rows.
type Replayer struct {
	rows      []Row
	stations  []models.StationID
	publisher MessagePublisher
	interval  time.Duration
	logger    zerolog.Logger

	sent   int
	failed int
}

// NewReplayer creates a replayer over rows
func NewReplayer(rows []Row, stations []models.StationID, publisher MessagePublisher, interval time.Duration, logger zerolog.Logger) *Replayer {
	return &Replayer{
		rows:      rows,
		stations:  stations,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Run publishes every row and returns nil once the file is exhausted, or
// ctx.Err() if cancelled first. Publish failures are logged and skipped.
func (r *Replayer) Run(ctx context.Context) error {
	var ticker *time.Ticker
	if r.interval > 0 {
		ticker = time.NewTicker(r.interval)
		defer ticker.Stop()
	}

	for i, row := range r.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.publishRow(ctx, row)

		if i == len(r.rows)-1 || ticker == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	r.logger.Info().Int("sent", r.sent).Int("failed", r.failed).Msg("Replay finished")
	return nil
}

// publishRow sends one message per station present on the row
func (r *Replayer) publishRow(ctx context.Context, row Row) {
	for _, msg := range row.Messages(r.stations) {
		station := models.StationID(msg.Channel)
		if err := r.publisher.Publish(ctx, station, msg.Payload); err != nil {
			r.failed++
			r.logger.Error().Err(err).Str("station", msg.Channel).Msg("Error sending message")
			continue
		}
		r.sent++
		r.logger.Info().Str("station", msg.Channel).Msgf("Sent '%s'", msg.Payload)
	}
}

// Sent returns the number of messages delivered so far
func (r *Replayer) Sent() int {
	return r.sent
}

// ChannelPublisher delivers messages onto a Go channel, so a feed file can be
// replayed straight into the dispatch loop without a broker.
type ChannelPublisher struct {
	messages chan models.RawMessage
}

// NewChannelPublisher creates a publisher backed by a channel of size bufferSize
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	return &ChannelPublisher{messages: make(chan models.RawMessage, bufferSize)}
}

// Publish blocks until the message is accepted or ctx is done
func (p *ChannelPublisher) Publish(ctx context.Context, station models.StationID, payload []byte) error {
	msg := models.RawMessage{Channel: string(station), Payload: payload, ReceivedAt: time.Now()}
	select {
	case p.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the delivery channel
func (p *ChannelPublisher) Messages() <-chan models.RawMessage {
	return p.messages
}

// Close closes the delivery channel; no Publish may follow
func (p *ChannelPublisher) Close() {
	close(p.messages)
}
