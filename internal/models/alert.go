package models

import "time"

// LabelUnknown is substituted for a classifier label when that classifier fails.
const LabelUnknown = "Unknown"

type AlertStatus string

const (
	AlertStatusOpen       AlertStatus = "open"
	AlertStatusResponding AlertStatus = "responding"
	AlertStatusCompleted  AlertStatus = "completed"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusOpen, AlertStatusResponding, AlertStatusCompleted:
		return true
	}
	return false
}

// TriageResult is the combined output of the urgency and category classifiers.
// A nil confidence means the classifier did not produce one.
type TriageResult struct {
	Category           string   `json:"category"`
	CategoryConfidence *float64 `json:"category_confidence,omitempty"`
	Urgency            string   `json:"urgency_level"`
	UrgencyConfidence  *float64 `json:"urgency_confidence,omitempty"`
}

// Degraded reports whether either label is the fallback.
func (t TriageResult) Degraded() bool {
	return isFallbackLabel(t.Category) || isFallbackLabel(t.Urgency)
}

// Improves reports whether t replaces at least one fallback label in prev
// without introducing a new one.
func (t TriageResult) Improves(prev TriageResult) bool {
	gained := (isFallbackLabel(prev.Category) && !isFallbackLabel(t.Category)) ||
		(isFallbackLabel(prev.Urgency) && !isFallbackLabel(t.Urgency))
	lost := (!isFallbackLabel(prev.Category) && isFallbackLabel(t.Category)) ||
		(!isFallbackLabel(prev.Urgency) && isFallbackLabel(t.Urgency))
	return gained && !lost
}

func isFallbackLabel(label string) bool {
	return label == "" || label == LabelUnknown
}

// Alert is the record appended to the shared alert store.
type Alert struct {
	ID       string `json:"id,omitempty"`
	ClientID string `json:"client_id"` // generated on the device, stable across retries
	UserID   string `json:"user_id"`
	User     string `json:"user"`

	Location Location  `json:"location"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`

	Category           string   `json:"category"`
	CategoryConfidence *float64 `json:"category_confidence,omitempty"`
	Urgency            string   `json:"urgency_level"`
	UrgencyConfidence  *float64 `json:"urgency_confidence,omitempty"`

	Status     AlertStatus `json:"status"`
	ReceivedAt time.Time   `json:"received_at,omitzero"`
}

func (a *Alert) Triage() TriageResult {
	return TriageResult{
		Category:           a.Category,
		CategoryConfidence: a.CategoryConfidence,
		Urgency:            a.Urgency,
		UrgencyConfidence:  a.UrgencyConfidence,
	}
}

func (a *Alert) ApplyTriage(t TriageResult) {
	a.Category = t.Category
	a.CategoryConfidence = t.CategoryConfidence
	a.Urgency = t.Urgency
	a.UrgencyConfidence = t.UrgencyConfidence
}
