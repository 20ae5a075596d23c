package automation

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// saveLogTimeout bounds a single run history insert.
const saveLogTimeout = 3 * time.Second

// LogStore persists run history rows.
type LogStore interface {
	CreateLog(ctx context.Context, log *models.AutomationLog) error
}

// Recorder receives engine outcomes. The Prometheus implementation lives in
// internal/metrics.
type Recorder interface {
	ObserveRun(trigger string, d time.Duration)
	IncOutcome(trigger, action, status string)
	SetQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, time.Duration)   {}
func (nopRecorder) IncOutcome(string, string, string) {}
func (nopRecorder) SetQueueDepth(int)                 {}

// executor runs one action with timeout and panic isolation and writes the
// outcome row. The engine and the queue workers share it.
type executor struct {
	logs     LogStore
	recorder Recorder
	timeout  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func (x *executor) execute(ctx context.Context, action ActionHandler, rule *models.AutomationRule, evt *Event) (err error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			x.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"action":  rule.ActionType,
			}).Errorf("automation: action panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action.Execute(ctx, rule, evt)
}

// success writes a success row carrying the event snapshot.
func (x *executor) success(ctx context.Context, rule *models.AutomationRule, evt *Event, meta datatypes.JSONMap) error {
	if meta == nil {
		meta = evt.Snapshot()
	}
	meta["action"] = rule.ActionType
	return x.write(ctx, rule, evt, models.AutomationStatusSuccess, meta)
}

// failure writes a failed row with the error text and the event snapshot.
func (x *executor) failure(ctx context.Context, rule *models.AutomationRule, evt *Event, cause error, snapshot datatypes.JSONMap) error {
	if snapshot == nil {
		snapshot = evt.Snapshot()
	}
	x.logger.WithFields(logrus.Fields{
		"rule_id": rule.ID,
		"action":  rule.ActionType,
	}).Warnf("automation: rule %q failed: %v", rule.Name, cause)
	meta := datatypes.JSONMap{
		"error":   cause.Error(),
		"action":  rule.ActionType,
		"context": map[string]interface{}(snapshot),
	}
	return x.write(ctx, rule, evt, models.AutomationStatusFailed, meta)
}

func (x *executor) write(ctx context.Context, rule *models.AutomationRule, evt *Event, status string, meta datatypes.JSONMap) error {
	entry := &models.AutomationLog{
		RuleID:     rule.ID,
		BoardID:    rule.BoardID,
		Status:     status,
		Meta:       meta,
		ExecutedAt: x.now(),
	}
	if evt.Item != nil {
		entry.ItemID = evt.Item.ID
	}
	x.recorder.IncOutcome(string(evt.Kind), rule.ActionType, status)

	// the row must land even when the triggering request has gone away
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveLogTimeout)
	defer cancel()
	if err := x.logs.CreateLog(saveCtx, entry); err != nil {
		return fmt.Errorf("automation: write %s log for rule %d: %w", status, rule.ID, err)
	}
	return nil
}
