package services

import (
	"context"
	"fmt"
	"strings"

	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UpdateService 条目动态（评论）
type UpdateService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewUpdateService(db *gorm.DB, logger *logrus.Logger) *UpdateService {
	if logger == nil {
		logger = logrus.New()
	}
	return &UpdateService{db: db, logger: logger}
}

// CreateUpdate posts body on item as authorID.
func (s *UpdateService) CreateUpdate(ctx context.Context, item *models.Item, authorID uint, body string) (*models.ItemUpdate, error) {
	if item == nil || item.ID == 0 {
		return nil, fmt.Errorf("item required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("body required")
	}
	update := &models.ItemUpdate{
		ItemID: item.ID,
		UserID: authorID,
		Body:   body,
	}
	if err := s.db.WithContext(ctx).Create(update).Error; err != nil {
		return nil, fmt.Errorf("failed to create update: %w", err)
	}
	return update, nil
}

// ListUpdates 按时间倒序返回条目动态
func (s *UpdateService) ListUpdates(ctx context.Context, itemID uint) ([]models.ItemUpdate, error) {
	var updates []models.ItemUpdate
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).
		Order("created_at DESC, id DESC").Find(&updates).Error; err != nil {
		return nil, err
	}
	return updates, nil
}
