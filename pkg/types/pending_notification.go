package types

import "encoding/json"

// PendingNotification is the store-and-forward outbox row for a recipient
// with no live connection. Rows are never deleted, only marked delivered.
type PendingNotification struct {
	ID          int64            `json:"id" db:"id"`
	EventType   string           `json:"event_type" db:"event_type"`
	TargetType  NotifyTargetType `json:"target_type" db:"target_type"`
	TargetID    string           `json:"target_id" db:"target_id"`
	Payload     json.RawMessage  `json:"payload" db:"payload"`
	IsDelivered bool             `json:"is_delivered" db:"is_delivered"`
	DeliveredAt int64            `json:"delivered_at" db:"delivered_at"`
	CreatedAt   int64            `json:"created_at" db:"created_at"`
}

type NotifyTargetType string

const (
	NOTIFY_TARGET_USER  NotifyTargetType = "user"
	NOTIFY_TARGET_AGENT NotifyTargetType = "customer_service"
)
