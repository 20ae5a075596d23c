package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Column types understood by the automation detector.
const (
	ColumnTypeText     = "text"
	ColumnTypeStatus   = "status"
	ColumnTypePerson   = "person"
	ColumnTypePriority = "priority"
	ColumnTypeDate     = "date"
	ColumnTypeNumber   = "number"
)

// 组织
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	OwnerID   uint      `gorm:"index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// 用户模型
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"unique;not null" json:"username"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	OrganizationID uint           `gorm:"index" json:"organization_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// 看板
type Board struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"index" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	CreatedByID    uint      `gorm:"index" json:"created_by_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Group is a titled section of a board that items live in.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"index" json:"board_id"`
	Title     string    `gorm:"not null" json:"title"`
	Color     string    `json:"color"`
	Position  int       `gorm:"default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Column describes one field of the board. Items store their value for a
// column under the column id (as a string key) in Item.Values.
type Column struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	BoardID   uint              `gorm:"index" json:"board_id"`
	Title     string            `gorm:"not null" json:"title"`
	Type      string            `gorm:"index;default:'text'" json:"type"`
	Settings  datatypes.JSONMap `gorm:"type:json" json:"settings"` // e.g. {"choices": [...]}
	Position  int               `gorm:"default:0" json:"position"`
	CreatedAt time.Time         `json:"created_at"`
}

// Item 看板条目；Values 以列 ID 为键，值均为字符串
type Item struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	BoardID     uint              `gorm:"index" json:"board_id"`
	GroupID     uint              `gorm:"index" json:"group_id"` // 0 while the item is not placed yet
	Name        string            `gorm:"not null" json:"name"`
	Values      datatypes.JSONMap `gorm:"type:json" json:"values"`
	Position    int               `gorm:"default:0" json:"position"`
	CreatedByID uint              `json:"created_by_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`
}

// ItemUpdate 条目评论/动态
type ItemUpdate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ItemID    uint      `gorm:"index" json:"item_id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification 站内通知
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// AllModels lists every table the application owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Organization{}, &User{}, &Board{}, &Group{}, &Column{}, &Item{},
		&ItemUpdate{}, &Notification{},
		&AutomationRule{}, &AutomationLog{}, &TriggerType{}, &ActionType{},
	}
}
