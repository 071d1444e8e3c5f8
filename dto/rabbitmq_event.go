package dto

import "github.com/mailforge/mailforge/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	Tenant     string          `json:"tenant"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	UserId      string `json:"userId"`
	UserEmail   string `json:"userEmail"`
	Timestamp   string `json:"timestamp"`
}

// EventCompleted is the fanout notification RabbitMQPublisher.
// PublishNotificationBulk sends on ExchangeNotifications: a completed
// create/update/delete for one or more entities of the same type.
type EventCompleted struct {
	Tenant     string          `json:"tenant"`
	EntityType enum.EntityType `json:"entityType"`
	EntityIds  []string        `json:"entityIds"`
	Create     bool            `json:"create"`
	Update     bool            `json:"update"`
	Delete     bool            `json:"delete"`
}
