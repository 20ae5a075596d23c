package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boardflow/internal/models"
	"boardflow/internal/repository"

	"gorm.io/datatypes"
)

const (
	updatePrefix      = "⚡ Automation: "
	archivedPrefix    = "[ARCHIVED] "
	notificationTitle = "Automation Triggered"
	itemNameToken     = "{item.name}"
	dateLayout        = "2006-01-02"
)

// Actions mutate the event's item and save it with OriginAutomation.
// Missing or unusable config is a no-op, never an error.

type moveItemAction struct {
	descriptor
	deps *Deps
}

func (moveItemAction) Kind() ActionKind { return ActionMoveItem }

func (a moveItemAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	item := evt.Item
	groupID, ok := ConfigOf(rule.ActionConfig).Uint("group_id")
	if item == nil || !ok {
		return nil
	}
	group, err := a.deps.Boards.FindGroup(ctx, rule.BoardID, groupID)
	if err != nil {
		return ignoreNotFound(err)
	}
	if item.GroupID == group.ID {
		return nil
	}
	item.GroupID = group.ID
	if err := a.deps.Items.SaveItem(ctx, item, OriginAutomation); err != nil {
		return fmt.Errorf("move item %d to group %d: %w", item.ID, group.ID, err)
	}
	a.deps.logger().Infof("automation: moved item '%s' to group '%s'", item.Name, group.Title)
	return nil
}

type changeStatusAction struct {
	descriptor
	deps *Deps
}

func (changeStatusAction) Kind() ActionKind { return ActionChangeStatus }

func (a changeStatusAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	cfg := ConfigOf(rule.ActionConfig)
	col, val := cfg.String("column_id"), cfg.String("new_value")
	if evt.Item == nil || col == "" || val == "" {
		return nil
	}
	return a.deps.setValue(ctx, evt.Item, col, val)
}

type createUpdateAction struct {
	descriptor
	deps *Deps
}

func (createUpdateAction) Kind() ActionKind { return ActionCreateUpdate }

func (a createUpdateAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	item := evt.Item
	msg := ConfigOf(rule.ActionConfig).String("message")
	if item == nil || msg == "" {
		return nil
	}
	board, err := a.deps.Boards.Board(ctx, rule.BoardID)
	if err != nil {
		return fmt.Errorf("load board %d: %w", rule.BoardID, err)
	}
	body := updatePrefix + substitute(msg, item)
	if _, err := a.deps.Updates.CreateUpdate(ctx, item, board.CreatedByID, body); err != nil {
		return fmt.Errorf("create update on item %d: %w", item.ID, err)
	}
	return nil
}

type sendNotificationAction struct {
	descriptor
	deps *Deps
}

func (sendNotificationAction) Kind() ActionKind { return ActionSendNotification }

func (a sendNotificationAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	item := evt.Item
	cfg := ConfigOf(rule.ActionConfig)
	userID, ok := cfg.Uint("user_id")
	if item == nil || !ok {
		return nil
	}
	user, err := a.deps.Boards.FindBoardUser(ctx, rule.BoardID, userID)
	if err != nil {
		return ignoreNotFound(err)
	}
	message := defaultMessage(rule, item)
	if custom := cfg.String("message"); custom != "" {
		message = substitute(custom, item)
	}
	return a.deps.Notifier.Notify(ctx, user.ID, notificationTitle, message, boardLink(rule.BoardID))
}

type assignPersonAction struct {
	descriptor
	deps *Deps
}

func (assignPersonAction) Kind() ActionKind { return ActionAssignPerson }

func (a assignPersonAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	userID, ok := ConfigOf(rule.ActionConfig).Uint("user_id")
	if evt.Item == nil || !ok {
		return nil
	}
	user, err := a.deps.Boards.FindBoardUser(ctx, rule.BoardID, userID)
	if err != nil {
		return ignoreNotFound(err)
	}
	col, err := a.deps.Boards.FirstColumnOfType(ctx, rule.BoardID, models.ColumnTypePerson)
	if err != nil {
		return ignoreNotFound(err)
	}
	return a.deps.setValue(ctx, evt.Item, columnKey(col.ID), user.Username)
}

// sendEmailAction mails the organization owner. It prefers the background
// queue since SMTP can be slow.
type sendEmailAction struct {
	descriptor
	deps *Deps
}

func (sendEmailAction) Kind() ActionKind { return ActionSendEmail }

func (sendEmailAction) Deferred() bool { return true }

func (a sendEmailAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	item := evt.Item
	if item == nil {
		return nil
	}
	recipient, err := a.recipient(ctx, rule.BoardID)
	if err != nil {
		return err
	}
	if recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email address", recipient.Username)
	}
	body := fmt.Sprintf("%s\n\nLink: %s", defaultMessage(rule, item), boardLink(rule.BoardID))
	if err := a.deps.Mailer.Send(ctx, notificationTitle, body, []string{recipient.Email}); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return a.deps.Notifier.Notify(ctx, recipient.ID, notificationTitle, defaultMessage(rule, item), boardLink(rule.BoardID))
}

func (a sendEmailAction) recipient(ctx context.Context, boardID uint) (*models.User, error) {
	owner, err := a.deps.Boards.OrganizationOwner(ctx, boardID)
	if err == nil {
		return owner, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	board, err := a.deps.Boards.Board(ctx, boardID)
	if err != nil {
		return nil, err
	}
	creator, err := a.deps.Boards.FindBoardUser(ctx, boardID, board.CreatedByID)
	if err != nil {
		return nil, fmt.Errorf("no email recipient for board %d: %w", boardID, err)
	}
	return creator, nil
}

type setPriorityAction struct {
	descriptor
	deps *Deps
}

func (setPriorityAction) Kind() ActionKind { return ActionSetPriority }

func (a setPriorityAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	priority := ConfigOf(rule.ActionConfig).String("priority")
	if evt.Item == nil || priority == "" {
		return nil
	}
	key := fallbackPriorityKey
	col, err := a.deps.Boards.FirstColumnOfType(ctx, rule.BoardID, models.ColumnTypePriority)
	switch {
	case err == nil:
		key = columnKey(col.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	return a.deps.setValue(ctx, evt.Item, key, priority)
}

type archiveItemAction struct {
	descriptor
	deps *Deps
}

func (archiveItemAction) Kind() ActionKind { return ActionArchiveItem }

func (a archiveItemAction) Execute(ctx context.Context, _ *models.AutomationRule, evt *Event) error {
	item := evt.Item
	if item == nil || strings.HasPrefix(item.Name, archivedPrefix) {
		return nil
	}
	item.Name = archivedPrefix + item.Name
	return a.deps.Items.SaveItem(ctx, item, OriginAutomation)
}

type createItemAction struct {
	descriptor
	deps *Deps
}

func (createItemAction) Kind() ActionKind { return ActionCreateItem }

func (a createItemAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	cfg := ConfigOf(rule.ActionConfig)
	groupID, ok := cfg.Uint("group_id")
	if !ok {
		return nil
	}
	group, err := a.deps.Boards.FindGroup(ctx, rule.BoardID, groupID)
	if err != nil {
		return ignoreNotFound(err)
	}
	name := cfg.String("name")
	if name == "" {
		name = "New item"
	}
	if evt.Item != nil {
		name = substitute(name, evt.Item)
	}
	created := &models.Item{
		BoardID: rule.BoardID,
		GroupID: group.ID,
		Name:    name,
		Values:  datatypes.JSONMap{},
	}
	return a.deps.Items.SaveItem(ctx, created, OriginAutomation)
}

type duplicateItemAction struct {
	descriptor
	deps *Deps
}

func (duplicateItemAction) Kind() ActionKind { return ActionDuplicateItem }

func (a duplicateItemAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	src := evt.Item
	if src == nil {
		return nil
	}
	groupID := src.GroupID
	if id, ok := ConfigOf(rule.ActionConfig).Uint("group_id"); ok {
		group, err := a.deps.Boards.FindGroup(ctx, rule.BoardID, id)
		if err != nil {
			return ignoreNotFound(err)
		}
		groupID = group.ID
	}
	values := make(datatypes.JSONMap, len(src.Values))
	for k, v := range src.Values {
		values[k] = v
	}
	dup := &models.Item{
		BoardID:     src.BoardID,
		GroupID:     groupID,
		Name:        src.Name + " (copy)",
		Values:      values,
		CreatedByID: src.CreatedByID,
	}
	return a.deps.Items.SaveItem(ctx, dup, OriginAutomation)
}

type setDateAction struct {
	descriptor
	deps *Deps
}

func (setDateAction) Kind() ActionKind { return ActionSetDate }

func (a setDateAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	if evt.Item == nil {
		return nil
	}
	cfg := ConfigOf(rule.ActionConfig)
	key := cfg.String("column_id")
	if key == "" {
		col, err := a.deps.Boards.FirstColumnOfType(ctx, rule.BoardID, models.ColumnTypeDate)
		if err != nil {
			return ignoreNotFound(err)
		}
		key = columnKey(col.ID)
	}
	date := a.deps.now().AddDate(0, 0, cfg.Int("days_offset", 0)).Format(dateLayout)
	return a.deps.setValue(ctx, evt.Item, key, date)
}

// setValue writes one field and saves, skipping the save when nothing changes.
func (d *Deps) setValue(ctx context.Context, item *models.Item, key, value string) error {
	if item.Values == nil {
		item.Values = datatypes.JSONMap{}
	}
	if cur, ok := item.Values[key]; ok && normalize(cur) == value {
		return nil
	}
	item.Values[key] = value
	if err := d.Items.SaveItem(ctx, item, OriginAutomation); err != nil {
		return fmt.Errorf("save item %d: %w", item.ID, err)
	}
	d.logger().Infof("automation: set %s=%q on item '%s'", key, value, item.Name)
	return nil
}

func substitute(text string, item *models.Item) string {
	return strings.ReplaceAll(text, itemNameToken, item.Name)
}

func defaultMessage(rule *models.AutomationRule, item *models.Item) string {
	return fmt.Sprintf("Rule %q triggered for item %q.", rule.Name, item.Name)
}

func boardLink(boardID uint) string {
	return fmt.Sprintf("/board/%d", boardID)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func builtinActions(deps Deps) []ActionHandler {
	d := &deps
	d.logger()
	return []ActionHandler{
		moveItemAction{descriptor{
			name:        "Move Item to Group",
			description: "Move item to another group",
			schema:      []ConfigField{{Name: "group_id", Type: "group", Label: "Group"}},
		}, d},
		changeStatusAction{descriptor{
			name:        "Change Status",
			description: "Change a status column value",
			schema: []ConfigField{
				{Name: "column_id", Type: "column", Param: models.ColumnTypeStatus, Label: "Column"},
				{Name: "new_value", Type: "value", Label: "Status"},
			},
		}, d},
		createUpdateAction{descriptor{
			name:        "Create an Update",
			description: "Add a comment/update to the item",
			schema:      []ConfigField{{Name: "message", Type: "text", Label: "Message"}},
		}, d},
		sendNotificationAction{descriptor{
			name:        "Notify User",
			description: "Send in-app notification",
			schema: []ConfigField{
				{Name: "user_id", Type: "user", Label: "User"},
				{Name: "message", Type: "text", Label: "Message"},
			},
		}, d},
		assignPersonAction{descriptor{
			name:        "Assign Person",
			description: "Assign someone to the item",
			schema:      []ConfigField{{Name: "user_id", Type: "user", Label: "Person"}},
		}, d},
		sendEmailAction{descriptor{
			name:        "Send Email",
			description: "Send an email notification to the organization owner",
		}, d},
		setPriorityAction{descriptor{
			name:        "Set Priority",
			description: "Change priority level",
			schema:      []ConfigField{{Name: "priority", Type: "value", Param: models.ColumnTypePriority, Label: "Priority"}},
		}, d},
		archiveItemAction{descriptor{
			name:        "Archive Item",
			description: "Mark the item as archived",
		}, d},
		createItemAction{descriptor{
			name:        "Create Item",
			description: "Create a new item in a group",
			schema: []ConfigField{
				{Name: "group_id", Type: "group", Label: "Group"},
				{Name: "name", Type: "text", Label: "Item name"},
			},
		}, d},
		duplicateItemAction{descriptor{
			name:        "Duplicate Item",
			description: "Create a copy of the current item",
			schema:      []ConfigField{{Name: "group_id", Type: "group", Label: "Target group"}},
		}, d},
		setDateAction{descriptor{
			name:        "Set Date",
			description: "Set a date column value",
			schema: []ConfigField{
				{Name: "column_id", Type: "column", Param: models.ColumnTypeDate, Label: "Column"},
				{Name: "days_offset", Type: "number", Label: "Days from today"},
			},
		}, d},
	}
}
