package model

// Event is a domain event from an external producer: email opens and
// clicks, form submissions, deal stage changes, lead grade changes. The
// same event feeds trigger evaluation and event-wait resumption.
type Event struct {
	Type     string         `json:"type"`
	EntityId string         `json:"entityId"`
	Payload  map[string]any `json:"payload,omitempty"`
}
