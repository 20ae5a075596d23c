package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boardflow/internal/automation"
	"boardflow/internal/models"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrInvalidRule is returned when a rule references an unknown trigger or
// action code.
var ErrInvalidRule = errors.New("invalid automation rule")

// AutomationRuleRequest 创建/更新自动化规则的请求
type AutomationRuleRequest struct {
	Name          string                 `json:"name"`
	TriggerType   string                 `json:"trigger_type" binding:"required"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	ActionType    string                 `json:"action_type" binding:"required"`
	ActionConfig  map[string]interface{} `json:"action_config"`
	IsActive      *bool                  `json:"is_active"`
}

// AutomationLogQuery 执行记录查询参数
type AutomationLogQuery struct {
	RuleID   uint   `form:"rule_id"`
	ItemID   uint   `form:"item_id"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// RuleService is the rule builder: board-scoped CRUD over automation rules
// plus read access to their run history.
type RuleService struct {
	rules    repository.RuleRepository
	boards   repository.BoardRepository
	registry *automation.Registry
	logger   *logrus.Logger
}

func NewRuleService(rules repository.RuleRepository, boards repository.BoardRepository, registry *automation.Registry, logger *logrus.Logger) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{rules: rules, boards: boards, registry: registry, logger: logger}
}

// List 返回看板的全部规则
func (s *RuleService) List(ctx context.Context, boardID uint) ([]models.AutomationRule, error) {
	if _, err := s.boards.Board(ctx, boardID); err != nil {
		return nil, err
	}
	return s.rules.ListRules(ctx, repository.RuleFilter{BoardID: boardID})
}

// Get returns ErrRuleNotFound when the rule belongs to another board.
func (s *RuleService) Get(ctx context.Context, boardID, id uint) (*models.AutomationRule, error) {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.BoardID != boardID {
		return nil, repository.ErrRuleNotFound
	}
	return rule, nil
}

// Create validates req and stores a new rule. Rules are active unless
// req.IsActive says otherwise; an empty name is generated.
func (s *RuleService) Create(ctx context.Context, boardID uint, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if _, err := s.boards.Board(ctx, boardID); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	rule := &models.AutomationRule{
		BoardID:  boardID,
		IsActive: true,
	}
	s.apply(rule, req)
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "board_id": boardID}).
		Infof("automation: rule %q created", rule.Name)
	return rule, nil
}

// Update replaces the rule's trigger, action and name.
func (s *RuleService) Update(ctx context.Context, boardID, id uint, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	rule, err := s.Get(ctx, boardID, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	s.apply(rule, req)
	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Toggle flips is_active and returns the new state.
func (s *RuleService) Toggle(ctx context.Context, boardID, id uint) (*models.AutomationRule, error) {
	rule, err := s.Get(ctx, boardID, id)
	if err != nil {
		return nil, err
	}
	rule.IsActive = !rule.IsActive
	if err := s.rules.ToggleRule(ctx, rule.ID, rule.IsActive); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *RuleService) Delete(ctx context.Context, boardID, id uint) error {
	if _, err := s.Get(ctx, boardID, id); err != nil {
		return err
	}
	return s.rules.DeleteRule(ctx, id)
}

// ListLogs 分页返回看板的执行记录（新的在前）
func (s *RuleService) ListLogs(ctx context.Context, boardID uint, q AutomationLogQuery) ([]models.AutomationLog, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 200 {
		q.PageSize = 50
	}
	return s.rules.ListLogs(ctx, repository.LogFilter{
		BoardID: boardID,
		RuleID:  q.RuleID,
		ItemID:  q.ItemID,
		Status:  q.Status,
		Limit:   q.PageSize,
		Offset:  (q.Page - 1) * q.PageSize,
	})
}

// PurgeLogs deletes run history older than days.
func (s *RuleService) PurgeLogs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	return s.rules.DeleteLogsBefore(ctx, time.Now().AddDate(0, 0, -days))
}

// StartLogRetention purges old history every interval until ctx is done.
// days <= 0 disables retention.
func (s *RuleService) StartLogRetention(ctx context.Context, days int, interval time.Duration) {
	if days <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeLogs(ctx, days)
				if err != nil {
					s.logger.Warnf("automation: log retention failed: %v", err)
					continue
				}
				if n > 0 {
					s.logger.Infof("automation: purged %d logs older than %d days", n, days)
				}
			}
		}
	}()
}

func (s *RuleService) validate(req *AutomationRuleRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request required", ErrInvalidRule)
	}
	if _, ok := s.registry.Trigger(automation.TriggerKind(req.TriggerType)); !ok {
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidRule, req.TriggerType)
	}
	if _, ok := s.registry.Action(automation.ActionKind(req.ActionType)); !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, req.ActionType)
	}
	return nil
}

func (s *RuleService) apply(rule *models.AutomationRule, req *AutomationRuleRequest) {
	rule.TriggerType = req.TriggerType
	rule.TriggerConfig = jsonMap(req.TriggerConfig)
	rule.ActionType = req.ActionType
	rule.ActionConfig = jsonMap(req.ActionConfig)
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	rule.Name = strings.TrimSpace(req.Name)
	if rule.Name == "" {
		rule.Name = s.RuleName(rule)
	}
}

// RuleName builds "When <trigger> (<value>) → <action> (<new_value>)"; the
// parenthesised parts only appear when configured.
func (s *RuleService) RuleName(rule *models.AutomationRule) string {
	var b strings.Builder
	b.WriteString("When ")
	if h, ok := s.registry.Trigger(automation.TriggerKind(rule.TriggerType)); ok {
		b.WriteString(h.Name())
	} else {
		b.WriteString(rule.TriggerType)
	}
	if v := automation.ConfigOf(rule.TriggerConfig).String("value"); v != "" {
		fmt.Fprintf(&b, " (%s)", v)
	}
	b.WriteString(" → ")
	if h, ok := s.registry.Action(automation.ActionKind(rule.ActionType)); ok {
		b.WriteString(h.Name())
	} else {
		b.WriteString(rule.ActionType)
	}
	if v := automation.ConfigOf(rule.ActionConfig).String("new_value"); v != "" {
		fmt.Fprintf(&b, " (%s)", v)
	}
	return b.String()
}

func jsonMap(m map[string]interface{}) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
