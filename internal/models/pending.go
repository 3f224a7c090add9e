package models

import "time"

// PendingAlert is a fully assembled alert whose remote append has not succeeded yet.
type PendingAlert struct {
	Alert    Alert     `json:"alert"`
	QueuedAt time.Time `json:"queued_at"`
	Reason   string    `json:"reason"`
}
