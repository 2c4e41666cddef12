package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// LogSubscriber consumes the events topic and writes each event to the log.
// It returns once ctx is cancelled or the subscription closes.
func LogSubscriber(ctx context.Context, sub message.Subscriber, topic string, log zerolog.Logger) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	log = log.With().Str("component", "event_log").Logger()
	for msg := range messages {
		var evt Event
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("Invalid event payload")
			msg.Ack()
			continue
		}
		log.Info().
			Str("event_type", string(evt.Type)).
			Str("session_id", evt.SessionID.String()).
			Str("user_id", evt.UserID.String()).
			Msg("Session event")
		msg.Ack()
	}
	return nil
}
