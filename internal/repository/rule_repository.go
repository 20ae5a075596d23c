package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boardflow/internal/models"

	"gorm.io/gorm"
)

// RuleRepository handles automation rule CRUD and run history.
type RuleRepository interface {
	// Rule CRUD
	ListRules(ctx context.Context, filter RuleFilter) ([]models.AutomationRule, error)
	GetRule(ctx context.Context, id uint) (*models.AutomationRule, error)
	CreateRule(ctx context.Context, rule *models.AutomationRule) error
	UpdateRule(ctx context.Context, rule *models.AutomationRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, active bool) error

	// Engine lookup
	FindActiveRules(ctx context.Context, boardID uint, triggerType string) ([]models.AutomationRule, error)

	// History
	CreateLog(ctx context.Context, log *models.AutomationLog) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.AutomationLog, int64, error)
	DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RuleFilter controls rule listing queries.
type RuleFilter struct {
	BoardID     uint
	TriggerType string
	IsActive    *bool
}

// LogFilter controls history listing queries.
type LogFilter struct {
	BoardID uint
	RuleID  uint
	ItemID  uint
	Status  string
	Limit   int
	Offset  int
}

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a gorm backed RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) ListRules(ctx context.Context, filter RuleFilter) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	query := r.db.WithContext(ctx)
	if filter.BoardID != 0 {
		query = query.Where("board_id = ?", filter.BoardID)
	}
	if filter.TriggerType != "" {
		query = query.Where("trigger_type = ?", filter.TriggerType)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list automation rules: %w", err)
	}
	return rules, nil
}

// GetRule returns ErrRuleNotFound if the rule does not exist.
func (r *ruleRepository) GetRule(ctx context.Context, id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get automation rule %d: %w", id, err)
	}
	return &rule, nil
}

func (r *ruleRepository) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create automation rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) UpdateRule(ctx context.Context, rule *models.AutomationRule) error {
	if rule.ID == 0 {
		return fmt.Errorf("failed to update automation rule: missing rule ID")
	}
	result := r.db.WithContext(ctx).Model(&models.AutomationRule{}).Where("id = ?", rule.ID).
		Select("name", "is_active", "trigger_type", "trigger_config", "action_type", "action_config", "updated_at").
		Updates(rule)
	if result.Error != nil {
		return fmt.Errorf("failed to update automation rule %d: %w", rule.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes the rule together with its history.
func (r *ruleRepository) DeleteRule(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.AutomationRule{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete automation rule %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrRuleNotFound
		}
		if err := tx.Where("rule_id = ?", id).Delete(&models.AutomationLog{}).Error; err != nil {
			return fmt.Errorf("failed to delete logs of rule %d: %w", id, err)
		}
		return nil
	})
}

func (r *ruleRepository) ToggleRule(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.AutomationRule{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to toggle automation rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// FindActiveRules returns the board's active rules for one trigger code in
// id order.
func (r *ruleRepository) FindActiveRules(ctx context.Context, boardID uint, triggerType string) ([]models.AutomationRule, error) {
	active := true
	return r.ListRules(ctx, RuleFilter{BoardID: boardID, TriggerType: triggerType, IsActive: &active})
}

func (r *ruleRepository) CreateLog(ctx context.Context, log *models.AutomationLog) error {
	if log.ExecutedAt.IsZero() {
		log.ExecutedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to save automation log: %w", err)
	}
	return nil
}

// ListLogs returns matching rows newest first plus the total count.
func (r *ruleRepository) ListLogs(ctx context.Context, filter LogFilter) ([]models.AutomationLog, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.BoardID != 0 {
			db = db.Where("board_id = ?", filter.BoardID)
		}
		if filter.RuleID != 0 {
			db = db.Where("rule_id = ?", filter.RuleID)
		}
		if filter.ItemID != 0 {
			db = db.Where("item_id = ?", filter.ItemID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AutomationLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count automation logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var logs []models.AutomationLog
	if err := r.db.WithContext(ctx).Scopes(scope).
		Order("executed_at DESC, id DESC").Limit(limit).Offset(filter.Offset).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list automation logs: %w", err)
	}
	return logs, total, nil
}

func (r *ruleRepository) DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("executed_at < ?", before).Delete(&models.AutomationLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete automation logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
