package automation

// TriggerKind is the stable code a rule uses to reference a trigger handler.
// Codes are persisted on rules and must never be renamed once shipped.
type TriggerKind string

const (
	TriggerStatusChange    TriggerKind = "status_change"
	TriggerItemCreated     TriggerKind = "item_created"
	TriggerColumnChanged   TriggerKind = "column_changed"
	TriggerPriorityChanged TriggerKind = "priority_changed"
	TriggerItemAssigned    TriggerKind = "item_assigned"
	TriggerItemMoved       TriggerKind = "item_moved"
)

// ActionKind is the stable code a rule uses to reference an action handler.
type ActionKind string

const (
	ActionMoveItem         ActionKind = "move_item"
	ActionChangeStatus     ActionKind = "change_status"
	ActionCreateUpdate     ActionKind = "create_update"
	ActionSendNotification ActionKind = "send_notification"
	ActionAssignPerson     ActionKind = "assign_person"
	ActionSendEmail        ActionKind = "send_email"
	ActionSetPriority      ActionKind = "set_priority"
	ActionArchiveItem      ActionKind = "archive_item"
	ActionCreateItem       ActionKind = "create_item"
	ActionDuplicateItem    ActionKind = "duplicate_item"
	ActionSetDate          ActionKind = "set_date"
)

// Origin tells the item persistence layer who caused a save.
type Origin int

const (
	// OriginUserEdit is a save made by a person (or an API client acting for one).
	OriginUserEdit Origin = iota
	// OriginAutomation is a save made by an action handler. Such saves never
	// produce events.
	OriginAutomation
)

func (o Origin) String() string {
	switch o {
	case OriginAutomation:
		return "automation"
	default:
		return "user_edit"
	}
}
