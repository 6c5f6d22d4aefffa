package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Message is the unit stored in the outbox table.
type Message struct {
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Payload  json.RawMessage
}
