package models

import "time"

// Notification delivers one alert to one recipient.
type Notification struct {
	ID              string     `db:"id" json:"id"`
	RecipientUserID string     `db:"recipient_user_id" json:"recipient_user_id"`
	AlertID         string     `db:"alert_id" json:"alert_id"`
	IsRead          bool       `db:"is_read" json:"is_read"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ReadAt          *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// NotificationDetail is a notification joined with its alert.
type NotificationDetail struct {
	Notification
	SubjectID     string        `db:"subject_id" json:"subject_id"`
	SubjectName   string        `db:"subject_name" json:"subject_name"`
	AlertType     AlertType     `db:"alert_type" json:"alert_type"`
	AlertSeverity AlertSeverity `db:"alert_severity" json:"alert_severity"`
	AlertTitle    string        `db:"alert_title" json:"alert_title"`
}

// NotificationStatus filters notifications by read state.
type NotificationStatus string

const (
	NotificationAll    NotificationStatus = "all"
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// ParseNotificationStatus defaults to all.
func ParseNotificationStatus(raw string) (NotificationStatus, bool) {
	switch NotificationStatus(raw) {
	case "", NotificationAll:
		return NotificationAll, true
	case NotificationUnread:
		return NotificationUnread, true
	case NotificationRead:
		return NotificationRead, true
	}
	return "", false
}

// NotificationFilter narrows a recipient's notifications.
type NotificationFilter struct {
	RecipientID string
	Status      NotificationStatus
	Page        int
	PageSize    int
}
