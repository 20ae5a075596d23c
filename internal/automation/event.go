package automation

import (
	"boardflow/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is one derived occurrence of a trigger. Which payload fields are
// populated depends on Kind; the rest stay zero.
type Event struct {
	ID      string
	Kind    TriggerKind
	BoardID uint
	Item    *models.Item

	// status_change
	ColumnID string
	NewValue string

	// column_changed
	OldValues map[string]string
	NewValues map[string]string

	// priority_changed
	NewPriority string

	// item_assigned
	NewAssignedUsername string
	NewAssignedUserID   uint // 0 when the username does not resolve

	// item_moved
	NewGroupID uint
}

// NewEvent starts an event of the given kind for item.
func NewEvent(kind TriggerKind, item *models.Item) *Event {
	evt := &Event{
		ID:   uuid.NewString(),
		Kind: kind,
		Item: item,
	}
	if item != nil {
		evt.BoardID = item.BoardID
	}
	return evt
}

// Snapshot is the serializable view of the event stored on log rows.
func (e *Event) Snapshot() datatypes.JSONMap {
	snap := datatypes.JSONMap{
		"event_id": e.ID,
		"trigger":  string(e.Kind),
	}
	if e.Item != nil {
		snap["item_id"] = e.Item.ID
		snap["item_name"] = e.Item.Name
	}
	switch e.Kind {
	case TriggerStatusChange:
		snap["column_id"] = e.ColumnID
		snap["new_value"] = e.NewValue
	case TriggerColumnChanged:
		snap["old_values"] = stringMap(e.OldValues)
		snap["new_values"] = stringMap(e.NewValues)
	case TriggerPriorityChanged:
		snap["new_priority"] = e.NewPriority
	case TriggerItemAssigned:
		snap["new_assigned_username"] = e.NewAssignedUsername
		if e.NewAssignedUserID != 0 {
			snap["new_assigned_user_id"] = e.NewAssignedUserID
		} else {
			snap["new_assigned_user_id"] = nil
		}
	case TriggerItemMoved:
		snap["new_group_id"] = e.NewGroupID
	}
	return snap
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
