package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-lifeline/internal/models"
)

type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db:  db,
		now: time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			user_label TEXT NOT NULL,
			message TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			location_source TEXT NOT NULL,
			category TEXT NOT NULL,
			category_confidence REAL,
			urgency TEXT NOT NULL,
			urgency_confidence REAL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			received_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_category ON alerts(category);
		CREATE INDEX IF NOT EXISTS idx_alerts_urgency ON alerts(urgency);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

const alertColumns = `id, client_id, user_id, user_label, message, latitude, longitude, location_source,
	category, category_confidence, urgency, urgency_confidence, status, created_at, received_at`

func (s *SQLiteDB) Add(ctx context.Context, a *models.Alert) (bool, error) {
	if a.ClientID == "" {
		a.ClientID = uuid.NewString()
	}
	if existing, err := s.getBy(ctx, "client_id", a.ClientID); err == nil {
		*a = *existing
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	a.ID = uuid.NewString()
	a.ReceivedAt = s.now().UTC()
	if a.Time.IsZero() {
		a.Time = a.ReceivedAt
	}
	if a.Status == "" {
		a.Status = models.AlertStatusOpen
	}
	if a.Location.Source == "" {
		a.Location.Source = models.LocationUnavailable
	}

	var lat, lon sql.NullFloat64
	if a.Location.Available() {
		lat = sql.NullFloat64{Float64: a.Location.Coords.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Coords.Longitude, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.UserID, a.User, a.Message, lat, lon, string(a.Location.Source),
		a.Category, nullFloat(a.CategoryConfidence), a.Urgency, nullFloat(a.UrgencyConfidence),
		string(a.Status), a.Time.UnixMilli(), a.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("error inserting alert: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	return s.getBy(ctx, "id", id)
}

func (s *SQLiteDB) getBy(ctx context.Context, column, value string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE `+column+` = ?`, value)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *opts.Category)
	}
	if opts.Urgency != nil {
		where = append(where, "urgency = ?")
		args = append(args, *opts.Urgency)
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *opts.UserID)
	}
	if opts.Degraded {
		where = append(where, "(category IN ('', ?) OR urgency IN ('', ?))")
		args = append(args, models.LabelUnknown, models.LabelUnknown)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	query += " ORDER BY created_at DESC, received_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) UpdateTriage(ctx context.Context, id string, t models.TriageResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET category = ?, category_confidence = ?, urgency = ?, urgency_confidence = ?
		WHERE id = ?`,
		t.Category, nullFloat(t.CategoryConfidence), t.Urgency, nullFloat(t.UrgencyConfidence), id)
	if err != nil {
		return fmt.Errorf("error updating triage: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteDB) SetStatus(ctx context.Context, id string, status models.AlertStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("error updating status: %w", err)
	}
	return expectOne(res)
}

func (s *SQLiteDB) Complete(ctx context.Context, id, userID string) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.UserID == "" || a.UserID != userID {
		return ErrForbidden
	}
	return s.SetStatus(ctx, id, models.AlertStatusCompleted)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a                     models.Alert
		lat, lon              sql.NullFloat64
		catConf, urgConf      sql.NullFloat64
		source, status        string
		createdAt, receivedAt int64
	)
	err := row.Scan(&a.ID, &a.ClientID, &a.UserID, &a.User, &a.Message, &lat, &lon, &source,
		&a.Category, &catConf, &a.Urgency, &urgConf, &status, &createdAt, &receivedAt)
	if err != nil {
		return nil, err
	}

	a.Location.Source = models.LocationSource(source)
	if lat.Valid && lon.Valid {
		a.Location.Coords = &models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if catConf.Valid {
		a.CategoryConfidence = &catConf.Float64
	}
	if urgConf.Valid {
		a.UrgencyConfidence = &urgConf.Float64
	}
	a.Status = models.AlertStatus(status)
	a.Time = time.UnixMilli(createdAt).UTC()
	a.ReceivedAt = time.UnixMilli(receivedAt).UTC()
	return &a, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
