package services

import (
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/services/events"
)

type Services struct {
	EventsService *events.EventsService
}

func InitServices(rabbitmqURL string, log logger.Logger) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	subscriberConfig := &events.SubscriberConfig{
		MaxRetries:          events.DefaultMaxRetries,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	events, err := events.NewEventsService(rabbitmqURL, log, publisherConfig, subscriberConfig)
	if err != nil {
		return nil, err
	}

	services := Services{
		EventsService: events,
	}

	return &services, nil
}
