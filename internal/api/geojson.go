package api

import (
	"github.com/mr1hm/go-lifeline/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type string `json:"type"`
	// Geometry is null for alerts sent without a location.
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(alerts []models.Alert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))

	for _, a := range alerts {
		f := Feature{
			Type: "Feature",
			Properties: map[string]any{
				"id":              a.ID,
				"user":            a.User,
				"message":         a.Message,
				"category":        a.Category,
				"urgency_level":   a.Urgency,
				"status":          a.Status,
				"location_source": a.Location.Source,
				"time":            a.Time,
			},
		}
		if a.Location.Available() {
			f.Geometry = &Geometry{
				Type:        "Point",
				Coordinates: []float64{a.Location.Coords.Longitude, a.Location.Coords.Latitude},
			}
		}
		if a.CategoryConfidence != nil {
			f.Properties["category_confidence"] = *a.CategoryConfidence
		}
		if a.UrgencyConfidence != nil {
			f.Properties["urgency_confidence"] = *a.UrgencyConfidence
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
