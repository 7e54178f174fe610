package syncqueue

import (
	"encoding/json"
	"time"
)

// Queue item statuses. pending -> processing -> {completed, failed} is the only
// transition path; terminal items leave the table only via the retention purge.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Entity types a queue item may target.
const (
	EntityOrder     = "order"
	EntityProduct   = "product"
	EntityInventory = "inventory"
)

// Operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Item is a queued mutation awaiting replay against the entity store.
// Payload is stored as a JSON document so replay consumers can ignore fields
// they do not know about.
type Item struct {
	ID         string    `dynamodbav:"id"`
	EntityType string    `dynamodbav:"entity_type"`
	EntityID   string    `dynamodbav:"entity_id"`
	Operation  string    `dynamodbav:"operation"`
	Payload    string    `dynamodbav:"payload"`
	DeviceID   string    `dynamodbav:"device_id,omitempty"`
	Status     string    `dynamodbav:"status"`
	RetryCount int       `dynamodbav:"retry_count"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
}

// UnmarshalPayload decodes the payload into out.
func (it Item) UnmarshalPayload(out interface{}) error {
	return json.Unmarshal([]byte(it.Payload), out)
}
