package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/mailer"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/realtime"
)

const notificationEventType = "notification"

type notificationRepository interface {
	CreateMany(ctx context.Context, alertID string, recipientIDs []string) ([]models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type staffDirectory interface {
	ListActiveByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
}

type notificationPusher interface {
	SendToUser(userID string, message realtime.Message) int
}

// NotificationService fans alerts out to their recipients and serves each
// recipient's inbox.
type NotificationService struct {
	repo     notificationRepository
	users    staffDirectory
	pusher   notificationPusher
	mailer   mailer.Mailer
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewNotificationService constructs NotificationService. pusher and mailer may be nil.
func NewNotificationService(repo notificationRepository, users staffDirectory, pusher notificationPusher, m mailer.Mailer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, pusher: pusher, mailer: m, metrics: metrics, validate: validate, logger: logger}
}

// FanOut records one notification per recipient of alert: the class
// teacher and every active administrator.
func (s *NotificationService) FanOut(ctx context.Context, alert *models.Alert, subject *models.SubjectContext) error {
	staff, err := s.users.ListActiveByRoles(ctx, models.RoleAdmin, models.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("list alert recipients: %w", err)
	}
	recipients := make([]string, 0, len(staff)+1)
	seen := make(map[string]bool, len(staff)+1)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	add(subject.TeacherID)
	for _, u := range staff {
		add(u.ID)
	}

	created, err := s.repo.CreateMany(ctx, alert.ID, recipients)
	if err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}
	s.metrics.RecordNotification("inbox", len(created))

	if s.pusher != nil {
		pushed := 0
		for _, n := range created {
			detail := models.NotificationDetail{
				Notification:  n,
				SubjectID:     subject.ID,
				SubjectName:   subject.Name,
				AlertType:     alert.Type,
				AlertSeverity: alert.Severity,
				AlertTitle:    alert.Title,
			}
			pushed += s.pusher.SendToUser(n.RecipientUserID, realtime.Message{Type: notificationEventType, Data: detail})
		}
		s.metrics.RecordNotification("websocket", pushed)
	}

	if alert.Type == models.AlertTypeNegative && alert.Severity == models.SeverityHigh {
		s.emailTeacher(ctx, alert, subject)
	}
	return nil
}

func (s *NotificationService) emailTeacher(ctx context.Context, alert *models.Alert, subject *models.SubjectContext) {
	if s.mailer == nil || subject.TeacherEmail == "" {
		return
	}
	msg := mailer.Message{
		To:          []mail.Address{{Name: subject.TeacherName, Address: subject.TeacherEmail}},
		Subject:     fmt.Sprintf("%s - %s", subject.Name, alert.Title),
		TextContent: alertEmailText(alert, subject),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("alert e-mail failed", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	s.metrics.RecordNotification("email", 1)
}

func alertEmailText(alert *models.Alert, subject *models.SubjectContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Class: %s\nSubject: %s\nSeverity: %s\n\n", subject.ClassName, subject.Name, alert.Severity)
	b.WriteString(alert.Title)
	b.WriteString("\n\n")
	b.WriteString(alert.Description)
	b.WriteString("\n")
	return b.String()
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, claims *models.JWTClaims, status string, page, pageSize int) ([]models.NotificationDetail, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	parsed, ok := models.ParseNotificationStatus(status)
	if !ok {
		return nil, nil, appErrors.Validation("invalid filter", []appErrors.FieldError{{Field: "filter", Reason: "must be one of all, unread, read"}})
	}
	items, total, err := s.repo.List(ctx, models.NotificationFilter{RecipientID: claims.UserID, Status: parsed, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, models.NewPagination(page, pageSize, total), nil
}

// MarkRead marks the caller's listed notifications as read. Ids that are
// unknown, foreign or already read are left untouched.
func (s *NotificationService) MarkRead(ctx context.Context, claims *models.JWTClaims, req dto.MarkReadRequest) (*dto.MarkReadResult, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	updated, err := s.repo.MarkRead(ctx, claims.UserID, req.IDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications")
	}
	return &dto.MarkReadResult{Updated: updated}, nil
}

// MarkAllRead clears the caller's unread notifications.
func (s *NotificationService) MarkAllRead(ctx context.Context, claims *models.JWTClaims) (*dto.MarkReadResult, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	updated, err := s.repo.MarkAllRead(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications")
	}
	return &dto.MarkReadResult{Updated: updated}, nil
}

// UnreadCount returns the caller's unread counter.
func (s *NotificationService) UnreadCount(ctx context.Context, claims *models.JWTClaims) (*dto.UnreadCount, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	count, err := s.repo.CountUnread(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return &dto.UnreadCount{Count: count}, nil
}
