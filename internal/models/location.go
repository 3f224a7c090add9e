package models

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationSource string

const (
	LocationFix         LocationSource = "fix"
	LocationLastKnown   LocationSource = "last_known"
	LocationUnavailable LocationSource = "unavailable"
)

// Location is where an alert was raised from. An unavailable location carries
// no coordinates rather than a zero point.
type Location struct {
	Coords *Coordinates   `json:"coords,omitempty"`
	Source LocationSource `json:"source"`
}

func UnavailableLocation() Location {
	return Location{Source: LocationUnavailable}
}

func (l Location) Available() bool {
	return l.Coords != nil && l.Source != LocationUnavailable
}
