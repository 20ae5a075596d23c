package automation

import "boardflow/internal/models"

// Trigger conditions compare a rule's trigger_config against the live event.
// An empty config key matches anything on that dimension.

type statusChangeTrigger struct{ descriptor }

func (statusChangeTrigger) Kind() TriggerKind { return TriggerStatusChange }

func (statusChangeTrigger) CheckCondition(rule *models.AutomationRule, evt *Event) bool {
	cfg := ConfigOf(rule.TriggerConfig)
	if col := cfg.String("column_id"); col != "" && col != evt.ColumnID {
		return false
	}
	if want := cfg.String("value"); want != "" && want != evt.NewValue {
		return false
	}
	return true
}

type itemCreatedTrigger struct{ descriptor }

func (itemCreatedTrigger) Kind() TriggerKind { return TriggerItemCreated }

func (itemCreatedTrigger) CheckCondition(*models.AutomationRule, *Event) bool { return true }

type columnChangedTrigger struct{ descriptor }

func (columnChangedTrigger) Kind() TriggerKind { return TriggerColumnChanged }

func (columnChangedTrigger) CheckCondition(*models.AutomationRule, *Event) bool { return true }

type priorityChangedTrigger struct{ descriptor }

func (priorityChangedTrigger) Kind() TriggerKind { return TriggerPriorityChanged }

func (priorityChangedTrigger) CheckCondition(rule *models.AutomationRule, evt *Event) bool {
	want := ConfigOf(rule.TriggerConfig).String("new_priority")
	return want == "" || want == evt.NewPriority
}

type itemAssignedTrigger struct{ descriptor }

func (itemAssignedTrigger) Kind() TriggerKind { return TriggerItemAssigned }

func (itemAssignedTrigger) CheckCondition(rule *models.AutomationRule, evt *Event) bool {
	if want := ConfigOf(rule.TriggerConfig).String("user_id"); want != "" {
		return want == idString(evt.NewAssignedUserID)
	}
	// clearing a person column is not an assignment
	return evt.NewAssignedUsername != ""
}

type itemMovedTrigger struct{ descriptor }

func (itemMovedTrigger) Kind() TriggerKind { return TriggerItemMoved }

func (itemMovedTrigger) CheckCondition(rule *models.AutomationRule, evt *Event) bool {
	if want := ConfigOf(rule.TriggerConfig).String("group_id"); want != "" {
		return want == idString(evt.NewGroupID)
	}
	return evt.NewGroupID != 0
}

func builtinTriggers() []TriggerHandler {
	return []TriggerHandler{
		statusChangeTrigger{descriptor{
			name:        "Status Changes",
			description: "When a status column changes to a specific value",
			schema: []ConfigField{
				{Name: "column_id", Type: "column", Param: models.ColumnTypeStatus, Label: "Column"},
				{Name: "value", Type: "value", Label: "Value"},
			},
		}},
		itemCreatedTrigger{descriptor{
			name:        "Item Created",
			description: "When a new item is created",
		}},
		columnChangedTrigger{descriptor{
			name:        "Any Column Changes",
			description: "When any column value is updated",
		}},
		priorityChangedTrigger{descriptor{
			name:        "Priority Changed",
			description: "When the priority column changes",
			schema: []ConfigField{
				{Name: "new_priority", Type: "value", Param: models.ColumnTypePriority, Label: "Priority"},
			},
		}},
		itemAssignedTrigger{descriptor{
			name:        "Person Assigned",
			description: "When someone is assigned to an item",
			schema: []ConfigField{
				{Name: "user_id", Type: "user", Label: "Person"},
			},
		}},
		itemMovedTrigger{descriptor{
			name:        "Item Moved to Group",
			description: "When an item is moved to a different group",
			schema: []ConfigField{
				{Name: "group_id", Type: "group", Label: "Group"},
			},
		}},
	}
}
