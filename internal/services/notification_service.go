package services

import (
	"context"
	"fmt"

	"boardflow/internal/models"
	"boardflow/internal/notify"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationPusher delivers a frame to a user's live connections.
type NotificationPusher interface {
	SendToUser(userID uint, msg notify.Message)
}

// NotificationService 站内通知：持久化后推送到在线连接
type NotificationService struct {
	db     *gorm.DB
	pusher NotificationPusher
	logger *logrus.Logger
}

func NewNotificationService(db *gorm.DB, pusher NotificationPusher, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{db: db, pusher: pusher, logger: logger}
}

// Notify stores a notification for userID and pushes it when a hub is set.
func (s *NotificationService) Notify(ctx context.Context, userID uint, title, message, link string) error {
	n := &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	if s.pusher != nil {
		s.pusher.SendToUser(userID, notify.Message{Type: "notification", Data: n})
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	var out []models.Notification
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
