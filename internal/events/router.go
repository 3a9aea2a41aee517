package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// AccountHandler receives decoded account events from the router.
type AccountHandler interface {
	HandleUserCreated(ctx context.Context, event UserCreatedEvent) error
}

// RouterConfig holds configuration for the account event router
type RouterConfig struct {
	KafkaBrokers  []string
	Topic         string
	ConsumerGroup string
	Logger        *slog.Logger
}

// NewAccountRouter builds a Watermill router consuming the account topic and
// dispatching events to the handler. Unknown event types are acked and
// skipped so new producers never wedge the consumer.
func NewAccountRouter(cfg RouterConfig, handler AccountHandler) (*message.Router, error) {
	wmLogger := watermill.NewSlogLogger(cfg.Logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:       cfg.KafkaBrokers,
		Unmarshaler:   kafka.DefaultMarshaler{},
		ConsumerGroup: cfg.ConsumerGroup,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	router.AddNoPublisherHandler(
		"account-events",
		cfg.Topic,
		subscriber,
		func(msg *message.Message) error {
			return dispatchAccountEvent(msg, handler, cfg.Logger)
		},
	)

	return router, nil
}

func dispatchAccountEvent(msg *message.Message, handler AccountHandler, logger *slog.Logger) error {
	var event AccountEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logger.Error("Failed to decode account event, dropping",
			"message_id", msg.UUID,
			"error", err)
		return nil
	}

	switch event.Type {
	case EventUserCreated:
		var payload UserCreatedEvent
		if err := decodePayload(event.Data, &payload); err != nil {
			logger.Error("Failed to decode user.created payload, dropping",
				"event_id", event.ID,
				"error", err)
			return nil
		}
		return handler.HandleUserCreated(msg.Context(), payload)
	default:
		logger.Debug("Skipping unhandled account event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}
}

// decodePayload re-marshals the loosely typed Data field into the concrete
// payload struct.
func decodePayload(data interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
