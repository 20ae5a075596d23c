package automation

import (
	"context"
	"sort"
	"strconv"

	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
)

// fallbackPriorityKey is the field used for priority when a board has no
// priority-typed column.
const fallbackPriorityKey = "priority"

// ItemState is what the before-save hook captures about an item.
type ItemState struct {
	Values  map[string]string
	present map[string]bool
	GroupID uint
}

// CaptureState snapshots item before it is mutated and saved.
func CaptureState(item *models.Item) *ItemState {
	st := &ItemState{
		Values:  valuesOf(item.Values),
		present: make(map[string]bool, len(item.Values)),
		GroupID: item.GroupID,
	}
	for k := range item.Values {
		st.present[k] = true
	}
	return st
}

// Change is the input to Detect: one finished save of one item.
type Change struct {
	Before  *ItemState // nil for a first save
	After   *models.Item
	Created bool
	Origin  Origin
	Columns []models.Column // the item's board columns
}

// UsernameResolver turns a person-column value into a user id on the board.
type UsernameResolver interface {
	UserIDByUsername(ctx context.Context, boardID uint, username string) (uint, error)
}

// Detector derives trigger events from item saves.
type Detector struct {
	users  UsernameResolver
	logger *logrus.Logger
}

// NewDetector returns a detector. users may be nil, in which case assigned
// user ids are never resolved.
func NewDetector(users UsernameResolver, logger *logrus.Logger) *Detector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Detector{users: users, logger: logger}
}

// Detect returns the events for a save in a fixed order: item_created,
// status_change (per column), column_changed, priority_changed,
// item_assigned, item_moved. Saves made by automation produce nothing.
func (d *Detector) Detect(ctx context.Context, change Change) []*Event {
	item := change.After
	if item == nil || change.Origin == OriginAutomation {
		return nil
	}
	if change.Created || change.Before == nil {
		return []*Event{NewEvent(TriggerItemCreated, item)}
	}

	before := change.Before
	after := CaptureState(item)
	cols := sortedColumns(change.Columns)

	var events []*Event
	if valuesDiffer(before, after) {
		for _, col := range cols {
			if col.Type != models.ColumnTypeStatus {
				continue
			}
			key := columnKey(col.ID)
			if before.Values[key] == after.Values[key] {
				continue
			}
			evt := NewEvent(TriggerStatusChange, item)
			evt.ColumnID = key
			evt.NewValue = after.Values[key]
			events = append(events, evt)
		}

		changed := NewEvent(TriggerColumnChanged, item)
		changed.OldValues = before.Values
		changed.NewValues = after.Values
		events = append(events, changed)

		pkey := priorityKey(cols)
		if before.Values[pkey] != after.Values[pkey] || before.present[pkey] != after.present[pkey] {
			evt := NewEvent(TriggerPriorityChanged, item)
			evt.NewPriority = after.Values[pkey]
			events = append(events, evt)
		}
	}

	// Person columns and moves need a placed item.
	if item.GroupID == 0 {
		return events
	}

	for _, col := range cols {
		if col.Type != models.ColumnTypePerson {
			continue
		}
		key := columnKey(col.ID)
		if before.Values[key] == after.Values[key] && before.present[key] == after.present[key] {
			continue
		}
		evt := NewEvent(TriggerItemAssigned, item)
		evt.NewAssignedUsername = after.Values[key]
		evt.NewAssignedUserID = d.resolve(ctx, item.BoardID, evt.NewAssignedUsername)
		events = append(events, evt)
		break
	}

	if before.GroupID != item.GroupID {
		evt := NewEvent(TriggerItemMoved, item)
		evt.NewGroupID = item.GroupID
		events = append(events, evt)
	}
	return events
}

func (d *Detector) resolve(ctx context.Context, boardID uint, username string) uint {
	if username == "" || d.users == nil {
		return 0
	}
	id, err := d.users.UserIDByUsername(ctx, boardID, username)
	if err != nil {
		d.logger.WithField("username", username).Debugf("automation: assigned user not resolved: %v", err)
		return 0
	}
	return id
}

func valuesDiffer(before, after *ItemState) bool {
	if len(before.present) != len(after.present) {
		return true
	}
	for k := range after.present {
		if !before.present[k] || before.Values[k] != after.Values[k] {
			return true
		}
	}
	return false
}

func priorityKey(cols []models.Column) string {
	for _, col := range cols {
		if col.Type == models.ColumnTypePriority {
			return columnKey(col.ID)
		}
	}
	return fallbackPriorityKey
}

func sortedColumns(cols []models.Column) []models.Column {
	out := make([]models.Column, len(cols))
	copy(out, cols)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func columnKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
