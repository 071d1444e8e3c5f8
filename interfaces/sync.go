package interfaces

import (
	"context"

	"github.com/mailforge/mailforge/internal/enum"
)

// SyncEvent is the outbound event envelope the reconcilers and the
// outgoing-task pipeline enqueue to the external hook channel:
// (account_id, account_email, event_type, payload). Transport is not the
// core's concern; EventSink is the boundary.
type SyncEvent struct {
	AccountID    string
	AccountEmail string
	EventType    enum.EventType
	Payload      interface{}
}

// EventSink is implemented by the RabbitMQ publisher. Reconcilers call Emit
// once per semantic event produced; ordering is preserved per folder, not
// guaranteed across folders or accounts.
type EventSink interface {
	Emit(ctx context.Context, event SyncEvent) error
}

// HookSubscriptions reports whether an external consumer is subscribed to an
// event kind for an account, so a reconciler can skip building a payload
// nobody downstream will receive (full-body fetch for EmailAddedToFolder,
// RFC 822 fetch + MIME parse for bounce/feedback-report classification).
type HookSubscriptions interface {
	IsSubscribed(ctx context.Context, accountID string, eventType enum.EventType) (bool, error)
}

// BlobCache is the narrow disk-cache contract the inline-attachment resolver
// and the outgoing-body pipeline use. StorageService (R2-backed) satisfies
// it without modification.
type BlobCache interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
