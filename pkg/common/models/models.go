package models

import "time"

// Event is the envelope for messages on the platform event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // training.finished, generation.stored
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Event types published by the platform services.
const (
	EventTrainingFinished = "training.finished"
)

// APIResponse is the uniform envelope returned by the HTTP APIs.
type APIResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
