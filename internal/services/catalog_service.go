package services

import (
	"context"
	"fmt"
	"sort"

	"boardflow/internal/automation"
	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// catalogStyle is the rule builder's display metadata for a code.
type catalogStyle struct {
	Name          string
	Description   string
	Icon          string
	Color         string
	RequiresValue bool
	Order         int
}

var triggerStyles = map[automation.TriggerKind]catalogStyle{
	automation.TriggerStatusChange:    {"Status Changed", "When a status column changes to a specific value", "lightning", "blue", true, 1},
	automation.TriggerItemCreated:     {"Item Created", "When a new item is added to the board", "plus-circle", "green", false, 2},
	automation.TriggerItemAssigned:    {"Person Assigned", "When someone is assigned to an item", "user-plus", "purple", false, 3},
	automation.TriggerPriorityChanged: {"Priority Changed", "When priority column changes", "alert-triangle", "red", true, 4},
	automation.TriggerColumnChanged:   {"Any Column Changed", "When any column value changes", "edit", "indigo", false, 6},
	automation.TriggerItemMoved:       {"Item Moved to Group", "When an item is moved to a different group", "move", "teal", true, 7},
}

var actionStyles = map[automation.ActionKind]catalogStyle{
	automation.ActionSendEmail:        {"Send Email", "Send an email notification", "mail", "orange", false, 1},
	automation.ActionChangeStatus:     {"Change Status", "Change a status column value", "refresh", "purple", true, 2},
	automation.ActionCreateItem:       {"Create Item", "Create a new item in a group", "plus", "green", true, 3},
	automation.ActionDuplicateItem:    {"Duplicate Item", "Create a copy of the current item", "copy", "blue", false, 4},
	automation.ActionMoveItem:         {"Move Item", "Move item to another group", "arrow-right", "teal", true, 5},
	automation.ActionAssignPerson:     {"Assign Person", "Assign someone to the item", "user", "indigo", true, 6},
	automation.ActionSetDate:          {"Set Date", "Set a date column value", "calendar", "orange", true, 7},
	automation.ActionSendNotification: {"Send Notification", "Send in-app notification", "bell", "yellow", false, 8},
	automation.ActionCreateUpdate:     {"Post Update", "Add a comment/update to the item", "message-square", "pink", true, 9},
	automation.ActionArchiveItem:      {"Archive Item", "Move item to archive", "archive", "gray", false, 10},
	automation.ActionSetPriority:      {"Set Priority", "Change priority level", "flag", "red", true, 11},
}

// CatalogEntry is one trigger or action offered by the rule builder.
type CatalogEntry struct {
	Code          string                   `json:"code"`
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	Icon          string                   `json:"icon"`
	Color         string                   `json:"color"`
	RequiresValue bool                     `json:"requires_value"`
	Order         int                      `json:"order"`
	Fields        []automation.ConfigField `json:"fields"`
}

// Catalog 规则构建器可用的触发器与动作
type Catalog struct {
	Triggers []CatalogEntry `json:"triggers"`
	Actions  []CatalogEntry `json:"actions"`
}

// CatalogService keeps the TriggerType/ActionType display rows in step with
// the handler registry.
type CatalogService struct {
	db       *gorm.DB
	registry *automation.Registry
	logger   *logrus.Logger
}

func NewCatalogService(db *gorm.DB, registry *automation.Registry, logger *logrus.Logger) *CatalogService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CatalogService{db: db, registry: registry, logger: logger}
}

// Seed creates a display row for every registered handler that lacks one.
// Existing rows are left untouched so operators can edit them.
func (s *CatalogService) Seed(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, h := range s.registry.Triggers() {
		st := styleOrDefault(triggerStyles[h.Kind()], h.Name(), h.Description(), "lightning", "blue")
		row := models.TriggerType{
			Name: st.Name, Description: st.Description, Icon: st.Icon, Color: st.Color,
			RequiresValue: st.RequiresValue, IsActive: true, SortOrder: st.Order,
		}
		if err := db.Where(models.TriggerType{Code: string(h.Kind())}).Attrs(row).
			FirstOrCreate(&models.TriggerType{}).Error; err != nil {
			return fmt.Errorf("seed trigger %s: %w", h.Kind(), err)
		}
	}
	for _, h := range s.registry.Actions() {
		st := styleOrDefault(actionStyles[h.Kind()], h.Name(), h.Description(), "mail", "orange")
		row := models.ActionType{
			Name: st.Name, Description: st.Description, Icon: st.Icon, Color: st.Color,
			RequiresValue: st.RequiresValue, IsActive: true, SortOrder: st.Order,
		}
		if err := db.Where(models.ActionType{Code: string(h.Kind())}).Attrs(row).
			FirstOrCreate(&models.ActionType{}).Error; err != nil {
			return fmt.Errorf("seed action %s: %w", h.Kind(), err)
		}
	}
	s.logger.Infof("automation: catalog seeded (%d triggers, %d actions)", len(s.registry.Triggers()), len(s.registry.Actions()))
	return nil
}

// Catalog merges registered handlers with their display rows. Handlers whose
// row is inactive are hidden; handlers without a row use built-in defaults.
// Rows without a registered handler are never listed.
func (s *CatalogService) Catalog(ctx context.Context) (*Catalog, error) {
	var triggerRows []models.TriggerType
	if err := s.db.WithContext(ctx).Find(&triggerRows).Error; err != nil {
		return nil, err
	}
	var actionRows []models.ActionType
	if err := s.db.WithContext(ctx).Find(&actionRows).Error; err != nil {
		return nil, err
	}
	tRows := make(map[string]models.TriggerType, len(triggerRows))
	for _, r := range triggerRows {
		tRows[r.Code] = r
	}
	aRows := make(map[string]models.ActionType, len(actionRows))
	for _, r := range actionRows {
		aRows[r.Code] = r
	}

	out := &Catalog{Triggers: []CatalogEntry{}, Actions: []CatalogEntry{}}
	for _, h := range s.registry.Triggers() {
		e := CatalogEntry{Code: string(h.Kind()), Fields: h.ConfigSchema()}
		if row, ok := tRows[e.Code]; ok {
			if !row.IsActive {
				continue
			}
			e.Name, e.Description, e.Icon, e.Color = row.Name, row.Description, row.Icon, row.Color
			e.RequiresValue, e.Order = row.RequiresValue, row.SortOrder
		} else {
			st := styleOrDefault(triggerStyles[h.Kind()], h.Name(), h.Description(), "lightning", "blue")
			e.Name, e.Description, e.Icon, e.Color = st.Name, st.Description, st.Icon, st.Color
			e.RequiresValue, e.Order = st.RequiresValue, st.Order
		}
		out.Triggers = append(out.Triggers, e)
	}
	for _, h := range s.registry.Actions() {
		e := CatalogEntry{Code: string(h.Kind()), Fields: h.ConfigSchema()}
		if row, ok := aRows[e.Code]; ok {
			if !row.IsActive {
				continue
			}
			e.Name, e.Description, e.Icon, e.Color = row.Name, row.Description, row.Icon, row.Color
			e.RequiresValue, e.Order = row.RequiresValue, row.SortOrder
		} else {
			st := styleOrDefault(actionStyles[h.Kind()], h.Name(), h.Description(), "mail", "orange")
			e.Name, e.Description, e.Icon, e.Color = st.Name, st.Description, st.Icon, st.Color
			e.RequiresValue, e.Order = st.RequiresValue, st.Order
		}
		out.Actions = append(out.Actions, e)
	}
	sortEntries(out.Triggers)
	sortEntries(out.Actions)
	return out, nil
}

func styleOrDefault(st catalogStyle, name, description, icon, color string) catalogStyle {
	if st.Name == "" {
		st.Name = name
	}
	if st.Description == "" {
		st.Description = description
	}
	if st.Icon == "" {
		st.Icon = icon
	}
	if st.Color == "" {
		st.Color = color
	}
	return st
}

func sortEntries(entries []CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].Code < entries[j].Code
	})
}
