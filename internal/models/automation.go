package models

import (
	"time"

	"gorm.io/datatypes"
)

// Automation log outcomes.
const (
	AutomationStatusSuccess = "success"
	AutomationStatusFailed  = "failed"
)

// AutomationRule 看板自动化规则：一个触发器绑定一个动作
type AutomationRule struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	BoardID       uint              `gorm:"index:idx_rules_board_trigger,priority:1;not null" json:"board_id"`
	Name          string            `gorm:"not null" json:"name"`
	IsActive      bool              `gorm:"index;not null" json:"is_active"`
	TriggerType   string            `gorm:"index:idx_rules_board_trigger,priority:2;not null" json:"trigger_type"`
	TriggerConfig datatypes.JSONMap `gorm:"type:json" json:"trigger_config"` // e.g. {column_id, value}
	ActionType    string            `gorm:"not null" json:"action_type"`
	ActionConfig  datatypes.JSONMap `gorm:"type:json" json:"action_config"` // e.g. {group_id}, {message}
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AutomationLog 执行记录用于审计，写入后不再修改
type AutomationLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	RuleID     uint              `gorm:"index" json:"rule_id"`
	BoardID    uint              `gorm:"index" json:"board_id"`
	ItemID     uint              `gorm:"index" json:"item_id"`
	Status     string            `gorm:"index;not null" json:"status"` // success, failed
	Meta       datatypes.JSONMap `gorm:"type:json" json:"meta"`
	ExecutedAt time.Time         `gorm:"index" json:"executed_at"`
}

// TriggerType is display metadata for a registered trigger code. It does not
// drive evaluation.
type TriggerType struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Code          string    `gorm:"uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	Icon          string    `gorm:"default:'lightning'" json:"icon"`
	Color         string    `gorm:"default:'blue'" json:"color"`
	RequiresValue bool      `json:"requires_value"`
	IsActive      bool      `json:"is_active"`
	SortOrder     int       `gorm:"default:0" json:"order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ActionType is display metadata for a registered action code.
type ActionType struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Code          string    `gorm:"uniqueIndex;not null" json:"code"`
	Name          string    `gorm:"not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	Icon          string    `gorm:"default:'mail'" json:"icon"`
	Color         string    `gorm:"default:'orange'" json:"color"`
	RequiresValue bool      `json:"requires_value"`
	IsActive      bool      `json:"is_active"`
	SortOrder     int       `gorm:"default:0" json:"order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
