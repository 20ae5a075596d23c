package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boardflow/internal/automation"
	"boardflow/internal/models"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInvalidItem is returned for item writes that fail validation.
var ErrInvalidItem = errors.New("invalid item")

// ItemCreateRequest 创建条目请求
type ItemCreateRequest struct {
	Name        string                 `json:"name" binding:"required"`
	Values      map[string]interface{} `json:"values"`
	CreatedByID uint                   `json:"created_by_id"`
}

// ItemUpdateRequest 条目部分更新；Values 按键合并，值为 null 时删除该键
type ItemUpdateRequest struct {
	Name    *string                `json:"name"`
	Values  map[string]interface{} `json:"values"`
	GroupID *uint                  `json:"group_id"`
}

// ItemService persists board items and feeds every user save through the
// automation detector and engine.
type ItemService struct {
	db       *gorm.DB
	boards   repository.BoardRepository
	detector *automation.Detector
	engine   *automation.Engine
	logger   *logrus.Logger
}

func NewItemService(db *gorm.DB, boards repository.BoardRepository, logger *logrus.Logger) *ItemService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ItemService{
		db:       db,
		boards:   boards,
		detector: automation.NewDetector(boards, logger),
		logger:   logger,
	}
}

// SetEngine 注入自动化引擎（引擎依赖本服务保存条目，因此延迟注入）
func (s *ItemService) SetEngine(engine *automation.Engine) {
	s.engine = engine
}

// LoadItem returns repository.ErrItemNotFound for unknown or deleted items.
func (s *ItemService) LoadItem(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return &item, nil
}

// CreateItem adds an item to a group on behalf of a user.
func (s *ItemService) CreateItem(ctx context.Context, groupID uint, req *ItemCreateRequest) (*models.Item, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidItem)
	}
	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %d: %w", groupID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load group %d: %w", groupID, err)
	}

	var position int64
	if err := s.db.WithContext(ctx).Model(&models.Item{}).Where("group_id = ?", group.ID).Count(&position).Error; err != nil {
		return nil, fmt.Errorf("failed to count items of group %d: %w", groupID, err)
	}

	item := &models.Item{
		BoardID:     group.BoardID,
		GroupID:     group.ID,
		Name:        strings.TrimSpace(req.Name),
		Values:      datatypes.JSONMap{},
		Position:    int(position),
		CreatedByID: req.CreatedByID,
	}
	for k, v := range req.Values {
		if v != nil {
			item.Values[k] = v
		}
	}
	if err := s.SaveItem(ctx, item, automation.OriginUserEdit); err != nil {
		return item, err
	}
	return item, nil
}

// UpdateItem applies a partial edit made by a user.
func (s *ItemService) UpdateItem(ctx context.Context, id uint, req *ItemUpdateRequest) (*models.Item, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidItem)
	}
	item, err := s.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidItem)
		}
		item.Name = name
	}
	if req.GroupID != nil && *req.GroupID != item.GroupID {
		group, err := s.boards.FindGroup(ctx, item.BoardID, *req.GroupID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: group %d is not on board %d", ErrInvalidItem, *req.GroupID, item.BoardID)
			}
			return nil, err
		}
		item.GroupID = group.ID
	}
	if len(req.Values) > 0 {
		values := make(datatypes.JSONMap, len(item.Values)+len(req.Values))
		for k, v := range item.Values {
			values[k] = v
		}
		for k, v := range req.Values {
			if v == nil {
				delete(values, k)
				continue
			}
			values[k] = v
		}
		item.Values = values
	}
	if err := s.SaveItem(ctx, item, automation.OriginUserEdit); err != nil {
		return item, err
	}
	return item, nil
}

// SaveItem persists item and, unless origin is OriginAutomation, runs the
// board's automations once per detected event. An item with ID 0 is created.
//
// The item row is committed before automations run; a returned error means
// either the save or an automation log write failed.
func (s *ItemService) SaveItem(ctx context.Context, item *models.Item, origin automation.Origin) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	created := item.ID == 0

	var before *automation.ItemState
	if !created && origin != automation.OriginAutomation {
		var stored models.Item
		err := s.db.WithContext(ctx).First(&stored, item.ID).Error
		switch {
		case err == nil:
			before = automation.CaptureState(&stored)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return repository.ErrItemNotFound
		default:
			return fmt.Errorf("failed to load item %d: %w", item.ID, err)
		}
	}

	if item.Values == nil {
		item.Values = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	if origin == automation.OriginAutomation || s.engine == nil {
		return nil
	}
	return s.runAutomations(ctx, before, item, created)
}

func (s *ItemService) runAutomations(ctx context.Context, before *automation.ItemState, item *models.Item, created bool) error {
	columns, err := s.boards.BoardColumns(ctx, item.BoardID)
	if err != nil {
		return err
	}
	events := s.detector.Detect(ctx, automation.Change{
		Before:  before,
		After:   item,
		Created: created,
		Origin:  automation.OriginUserEdit,
		Columns: columns,
	})
	for _, evt := range events {
		summary, err := s.engine.Run(ctx, item.BoardID, evt.Kind, evt)
		if err != nil {
			return err
		}
		if summary.Matched > 0 {
			s.logger.WithFields(logrus.Fields{
				"item_id": item.ID,
				"trigger": evt.Kind,
			}).Debugf("automation: %d matched, %d failed, %d deferred", summary.Matched, summary.Failed, summary.Deferred)
		}
	}
	return nil
}
