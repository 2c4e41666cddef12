package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// WatermillPublisher writes events as JSON messages to a single topic.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	log       zerolog.Logger
}

// NewWatermillPublisher wraps any watermill publisher.
func NewWatermillPublisher(publisher message.Publisher, topic string, log zerolog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		log:       log.With().Str("component", "event_publisher").Logger(),
	}
}

// NewKafkaPublisher creates a publisher backed by Kafka.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) (*WatermillPublisher, error) {
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewLoggerAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewWatermillPublisher(pub, topic, log), nil
}

// NewGoChannelPublisher creates an in-process publisher. The returned
// channel can be subscribed to on the same topic.
func NewGoChannelPublisher(topic string, log zerolog.Logger) (*WatermillPublisher, *gochannel.GoChannel) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewLoggerAdapter(log))
	return NewWatermillPublisher(ch, topic, log), ch
}

// Publish marshals evt and sends it to the topic.
func (p *WatermillPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(evt.Type))
	msg.Metadata.Set("session_id", evt.SessionID.String())
	msg.Metadata.Set("occurred_at", evt.OccurredAt.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	p.log.Debug().
		Str("event_id", evt.ID).
		Str("event_type", string(evt.Type)).
		Str("topic", p.topic).
		Msg("Event published")
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
