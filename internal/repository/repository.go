package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-lifeline/internal/models"
)

var (
	ErrNotFound  = errors.New("alert not found")
	ErrForbidden = errors.New("alert belongs to another user")
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

type Filter struct {
	Limit    int
	Offset   int
	Since    *time.Time
	Category *string
	Urgency  *string
	Status   *models.AlertStatus
	UserID   *string
	// Degraded selects alerts where either label is empty or Unknown.
	Degraded bool
}

type AlertRepository interface {
	// Add stores a new alert, assigning its id and receive time. An alert
	// whose client id is already stored is not duplicated: a is filled from
	// the existing record and created is false.
	Add(ctx context.Context, a *models.Alert) (created bool, err error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, opts Filter) ([]models.Alert, error)
	UpdateTriage(ctx context.Context, id string, t models.TriageResult) error
	SetStatus(ctx context.Context, id string, status models.AlertStatus) error
	// Complete marks the alert completed if userID owns it.
	Complete(ctx context.Context, id, userID string) error
}
