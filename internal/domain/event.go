package domain

import "time"

// Event types published on the event stream.
const (
	EventProfileCreated  = "profile.created"
	EventProfileUpdated  = "profile.updated"
	EventProfileDeleted  = "profile.deleted"
	EventAddressReserved = "address.reserved"
	EventAddressReleased = "address.released"
	EventWorkloadCreated = "workload.created"
	EventWorkloadUpdated = "workload.updated"
	EventWorkloadDeleted = "workload.deleted"
)

// Event represents a real-time event.
type Event struct {
	Type       string      `json:"type"`
	ResourceID string      `json:"resource_id"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
