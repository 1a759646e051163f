package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// NotificationRepository stores per-recipient alert notifications.
type NotificationRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateMany inserts one notification per recipient in a single statement.
// Recipients already notified of the alert are skipped; only new rows are
// returned.
func (r *NotificationRepository) CreateMany(ctx context.Context, alertID string, recipientIDs []string) ([]models.Notification, error) {
	if len(recipientIDs) == 0 {
		return nil, nil
	}
	now := r.now()
	values := make([]string, 0, len(recipientIDs))
	args := make([]interface{}, 0, len(recipientIDs)*3+1)
	args = append(args, now)
	for _, recipient := range recipientIDs {
		args = append(args, uuid.NewString(), recipient, alertID)
		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, FALSE, $1)", n-2, n-1, n))
	}

	query := `INSERT INTO notifications (id, recipient_user_id, alert_id, is_read, created_at) VALUES ` +
		strings.Join(values, ", ") +
		` ON CONFLICT (recipient_user_id, alert_id) DO NOTHING RETURNING id, recipient_user_id, alert_id, is_read, created_at, read_at`

	var created []models.Notification
	if err := r.db.SelectContext(ctx, &created, query, args...); err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	return created, nil
}

// List returns the recipient's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	base := `FROM notifications n
JOIN alerts a ON a.id = n.alert_id
JOIN subjects s ON s.id = a.subject_id
WHERE n.recipient_user_id = $1`
	switch filter.Status {
	case models.NotificationUnread:
		base += " AND n.is_read = FALSE"
	case models.NotificationRead:
		base += " AND n.is_read = TRUE"
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT n.id, n.recipient_user_id, n.alert_id, n.is_read, n.created_at, n.read_at,
a.subject_id, s.name AS subject_name, a.type AS alert_type, a.severity AS alert_severity, a.title AS alert_title
%s ORDER BY n.created_at DESC, n.id DESC LIMIT %d OFFSET %d`, base, limit, offset)

	var items []models.NotificationDetail
	if err := r.db.SelectContext(ctx, &items, query, filter.RecipientID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, filter.RecipientID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags the recipient's unread notifications among ids as read.
// Rows owned by someone else or already read are left untouched.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE recipient_user_id = $2 AND id = ANY($3) AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, r.now(), recipientID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// MarkAllRead flags every unread notification of the recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE, read_at = $1 WHERE recipient_user_id = $2 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, r.now(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread returns how many notifications the recipient has not read.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1 AND is_read = FALSE`, recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
