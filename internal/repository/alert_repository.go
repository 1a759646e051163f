package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

const alertColumns = "id, subject_id, type, severity, title, description, window_start, created_at, is_processed"

// AlertRepository persists alerts raised by the evaluation engine.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository constructs the repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const openAlertQuery = `SELECT EXISTS (SELECT 1 FROM alerts WHERE subject_id = $1 AND (is_processed = FALSE OR window_start = $2))`

// HasOpen reports whether the subject has an unprocessed alert or already
// has one for windowStart.
func (r *AlertRepository) HasOpen(ctx context.Context, subjectID string, windowStart time.Time) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, openAlertQuery, subjectID, windowStart); err != nil {
		return false, fmt.Errorf("check open alert: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent stores alert unless HasOpen would report true. The check
// and the insert run under a transaction-scoped advisory lock on the
// subject. A unique violation on (subject_id, window_start) is returned as
// ErrDuplicate.
func (r *AlertRepository) InsertIfAbsent(ctx context.Context, alert *models.Alert) (inserted bool, err error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin insert alert: %w", err)
	}
	defer func() {
		if err != nil || !inserted {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, alert.SubjectID); err != nil {
		return false, fmt.Errorf("lock subject alerts: %w", err)
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists, openAlertQuery, alert.SubjectID, alert.WindowStart); err != nil {
		return false, fmt.Errorf("check open alert: %w", err)
	}
	if exists {
		return false, nil
	}

	const insert = `INSERT INTO alerts (id, subject_id, type, severity, title, description, window_start, created_at, is_processed) VALUES (:id, :subject_id, :type, :severity, :title, :description, :window_start, :created_at, :is_processed)`
	if _, err = tx.NamedExecContext(ctx, insert, alert); err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, fmt.Errorf("insert alert: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit insert alert: %w", err)
	}
	return true, nil
}

// ListBySubject returns the alerts of a subject, newest first.
func (r *AlertRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Alert, error) {
	var alerts []models.Alert
	query := "SELECT " + alertColumns + " FROM alerts WHERE subject_id = $1 ORDER BY created_at DESC, id DESC"
	if err := r.db.SelectContext(ctx, &alerts, query, subjectID); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// FindByID returns an alert by ID.
func (r *AlertRepository) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.GetContext(ctx, &alert, "SELECT "+alertColumns+" FROM alerts WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return &alert, nil
}

// MarkProcessed flags an alert as handled. It reports whether a row changed.
func (r *AlertRepository) MarkProcessed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_processed = TRUE WHERE id = $1 AND is_processed = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("mark alert processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark alert processed: %w", err)
	}
	return affected > 0, nil
}
