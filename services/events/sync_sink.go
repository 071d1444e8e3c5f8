package events

import (
	"context"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/interfaces"
)

// syncEventRoutingKeys maps a sync event kind onto the routing key its
// consumers filter on. Every sync event is published on the mailstack-direct
// exchange; the routing key is what lets a downstream queue bind to only the
// event kinds it cares about.
var syncEventRoutingKeys = map[enum.EventType]string{
	enum.EventEmailAddedToFolder:        "mailstack-email-added",
	enum.EventEmailFlagsChanged:         "mailstack-email-flags-changed",
	enum.EventEmailBounce:               "mailstack-email-bounce",
	enum.EventEmailFeedBackReport:       "mailstack-email-feedback-report",
	enum.EventMailboxCreation:           "mailstack-mailbox-creation",
	enum.EventMailboxDeletion:           "mailstack-mailbox-deletion",
	enum.EventUIDValidityChange:         "mailstack-uid-validity-change",
	enum.EventAccountFirstSyncCompleted: "mailstack-account-first-sync-completed",
	enum.EventEmailSentSuccess:          "mailstack-email-sent",
	enum.EventEmailSendingError:         "mailstack-email-sending-error",
	enum.EventEmailOpened:               "mailstack-email-opened",
	enum.EventEmailLinkClicked:          "mailstack-email-link-clicked",
}

// SyncEventSink adapts RabbitMQPublisher to interfaces.EventSink so the sync
// reconcilers and the outgoing-task worker pool can publish onto the
// mailstack-direct exchange without depending on the events package's
// internal publishing machinery directly.
type SyncEventSink struct {
	publisher *RabbitMQPublisher
}

func NewSyncEventSink(publisher *RabbitMQPublisher) *SyncEventSink {
	return &SyncEventSink{publisher: publisher}
}

func (s *SyncEventSink) Emit(ctx context.Context, event interfaces.SyncEvent) error {
	routingKey, ok := syncEventRoutingKeys[event.EventType]
	if !ok {
		routingKey = RoutingKeyDeadLetter
	}
	return s.publisher.publishEventOnExchange(ctx, event.AccountID, enum.EMAIL, event, ExchangeMailstackDirect, routingKey)
}
