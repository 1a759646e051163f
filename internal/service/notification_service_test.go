package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/mailer"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/realtime"
)

// memoryNotifications behaves like the table: unique per (recipient, alert)
// and read state only ever flips to true.
type memoryNotifications struct {
	items []models.Notification
}

func (m *memoryNotifications) CreateMany(ctx context.Context, alertID string, recipientIDs []string) ([]models.Notification, error) {
	var created []models.Notification
	for _, r := range recipientIDs {
		exists := false
		for _, n := range m.items {
			if n.AlertID == alertID && n.RecipientUserID == r {
				exists = true
			}
		}
		if exists {
			continue
		}
		n := models.Notification{ID: fmt.Sprintf("n%d", len(m.items)+1), RecipientUserID: r, AlertID: alertID, CreatedAt: time.Now()}
		m.items = append(m.items, n)
		created = append(created, n)
	}
	return created, nil
}

func (m *memoryNotifications) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, int, error) {
	var out []models.NotificationDetail
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.RecipientUserID != filter.RecipientID {
			continue
		}
		if (filter.Status == models.NotificationUnread && n.IsRead) || (filter.Status == models.NotificationRead && !n.IsRead) {
			continue
		}
		out = append(out, models.NotificationDetail{Notification: n})
	}
	return out, len(out), nil
}

func (m *memoryNotifications) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	var updated int64
	for i := range m.items {
		for _, id := range ids {
			if m.items[i].ID == id && m.items[i].RecipientUserID == recipientID && !m.items[i].IsRead {
				m.items[i].IsRead = true
				updated++
			}
		}
	}
	return updated, nil
}

func (m *memoryNotifications) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	var updated int64
	for i := range m.items {
		if m.items[i].RecipientUserID == recipientID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *memoryNotifications) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count := 0
	for _, n := range m.items {
		if n.RecipientUserID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

type staticStaff struct {
	users []models.User
	err   error
}

func (s staticStaff) ListActiveByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error) {
	return s.users, s.err
}

type recordingPusher struct {
	sent map[string][]realtime.Message
}

func (p *recordingPusher) SendToUser(userID string, message realtime.Message) int {
	if p.sent == nil {
		p.sent = make(map[string][]realtime.Message)
	}
	p.sent[userID] = append(p.sent[userID], message)
	return 1
}

type recordingMailer struct {
	messages []mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

type notificationFixture struct {
	svc    *NotificationService
	repo   *memoryNotifications
	pusher *recordingPusher
	mail   *recordingMailer
}

func newNotificationFixture(staff ...models.User) notificationFixture {
	fx := notificationFixture{repo: &memoryNotifications{}, pusher: &recordingPusher{}, mail: &recordingMailer{}}
	fx.svc = NewNotificationService(fx.repo, staticStaff{users: staff}, fx.pusher, fx.mail, NewMetricsService(), nil, zap.NewNop())
	return fx
}

func TestNotificationServiceFanOutRecipients(t *testing.T) {
	fx := newNotificationFixture(
		models.User{ID: "admin-1", Role: models.RoleAdmin},
		models.User{ID: "root", Role: models.RoleSuperAdmin},
		models.User{ID: testTeacherID, Role: models.RoleAdmin},
	)
	alert := &models.Alert{ID: "alert-1", SubjectID: testSubjectID, Type: models.AlertTypePositive, Severity: models.SeverityLow, Title: "Bravo"}

	require.NoError(t, fx.svc.FanOut(context.Background(), alert, testSubject()))

	recipients := make([]string, 0, len(fx.repo.items))
	for _, n := range fx.repo.items {
		recipients = append(recipients, n.RecipientUserID)
	}
	assert.Equal(t, []string{testTeacherID, "admin-1", "root"}, recipients)
	require.Len(t, fx.pusher.sent[testTeacherID], 1)
	assert.Equal(t, "notification", fx.pusher.sent[testTeacherID][0].Type)
	assert.Empty(t, fx.mail.messages)

	require.NoError(t, fx.svc.FanOut(context.Background(), alert, testSubject()))
	assert.Len(t, fx.repo.items, 3)
}

func TestNotificationServiceFanOutEmailsTeacherOnHighNegative(t *testing.T) {
	fx := newNotificationFixture()
	alert := &models.Alert{ID: "alert-1", Type: models.AlertTypeNegative, Severity: models.SeverityHigh, Title: "Cours incompréhensible", Description: "Trois avis négatifs."}

	require.NoError(t, fx.svc.FanOut(context.Background(), alert, testSubject()))
	require.Len(t, fx.mail.messages, 1)
	msg := fx.mail.messages[0]
	assert.Equal(t, "camille@example.com", msg.To[0].Address)
	assert.Equal(t, "Algorithmique - Cours incompréhensible", msg.Subject)
	assert.Contains(t, msg.TextContent, "Trois avis négatifs.")
}

func TestNotificationServiceFanOutStaffLookupFails(t *testing.T) {
	repo := &memoryNotifications{}
	svc := NewNotificationService(repo, staticStaff{err: errors.New("db down")}, nil, nil, nil, nil, nil)

	err := svc.FanOut(context.Background(), &models.Alert{ID: "alert-1"}, testSubject())
	require.Error(t, err)
	assert.Empty(t, repo.items)
}

func TestNotificationServiceMarkReadIsIdempotent(t *testing.T) {
	fx := newNotificationFixture(models.User{ID: "admin-1"})
	require.NoError(t, fx.svc.FanOut(context.Background(), &models.Alert{ID: "alert-1"}, testSubject()))
	require.NoError(t, fx.svc.FanOut(context.Background(), &models.Alert{ID: "alert-2"}, testSubject()))
	claims := teacherClaims(testTeacherID)
	ids := []string{fx.repo.items[0].ID, fx.repo.items[2].ID}

	_, err := fx.svc.MarkRead(context.Background(), claims, dto.MarkReadRequest{IDs: ids})
	require.Error(t, err, "ids must be uuids")

	ctx := context.Background()
	fx.repo.items[0].ID = "6f1a5c1e-0000-4000-8000-000000000001"
	fx.repo.items[2].ID = "6f1a5c1e-0000-4000-8000-000000000003"
	ids = []string{fx.repo.items[0].ID, fx.repo.items[2].ID}

	first, err := fx.svc.MarkRead(ctx, claims, dto.MarkReadRequest{IDs: ids})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Updated)

	second, err := fx.svc.MarkRead(ctx, claims, dto.MarkReadRequest{IDs: ids})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Updated)

	unread, err := fx.svc.UnreadCount(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, 0, unread.Count)

	adminUnread, err := fx.svc.UnreadCount(ctx, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, adminUnread.Count)
}

func TestNotificationServiceMarkReadIgnoresForeignRows(t *testing.T) {
	fx := newNotificationFixture(models.User{ID: "admin-1"})
	require.NoError(t, fx.svc.FanOut(context.Background(), &models.Alert{ID: "alert-1"}, testSubject()))
	fx.repo.items[1].ID = "6f1a5c1e-0000-4000-8000-000000000002"

	result, err := fx.svc.MarkRead(context.Background(), teacherClaims(testTeacherID), dto.MarkReadRequest{IDs: []string{fx.repo.items[1].ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Updated)
	assert.False(t, fx.repo.items[1].IsRead)
}

func TestNotificationServiceMarkAllReadLeavesNothingUnread(t *testing.T) {
	fx := newNotificationFixture()
	for i := 1; i <= 3; i++ {
		require.NoError(t, fx.svc.FanOut(context.Background(), &models.Alert{ID: fmt.Sprintf("alert-%d", i)}, testSubject()))
	}
	claims := teacherClaims(testTeacherID)

	result, err := fx.svc.MarkAllRead(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Updated)

	items, page, err := fx.svc.List(context.Background(), claims, "unread", 1, 20)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, page.TotalCount)

	items, _, err = fx.svc.List(context.Background(), claims, "", 1, 20)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, "alert-3", items[0].AlertID)
}

func TestNotificationServiceListRejectsUnknownFilter(t *testing.T) {
	fx := newNotificationFixture()

	_, _, err := fx.svc.List(context.Background(), teacherClaims(testTeacherID), "archived", 1, 20)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = fx.svc.List(context.Background(), nil, "", 1, 20)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
