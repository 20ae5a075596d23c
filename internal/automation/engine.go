package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boardflow/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "boardflow/internal/automation"

var errNoActionHandler = errors.New("no handler for action")

// RuleStore returns the active rules of a board for one trigger code.
type RuleStore interface {
	FindActiveRules(ctx context.Context, boardID uint, triggerType string) ([]models.AutomationRule, error)
}

// RunSummary counts what one pass did.
type RunSummary struct {
	Evaluated int `json:"evaluated"`
	Matched   int `json:"matched"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}

// Engine evaluates a board's active rules against one event at a time and
// runs the actions of the rules that match.
type Engine struct {
	rules    RuleStore
	registry *Registry
	queue    *Queue
	exec     *executor
	tracer   trace.Tracer
	logger   *logrus.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithActionTimeout bounds each in-line action. Zero disables the bound.
func WithActionTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.exec.timeout = d }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.exec.recorder = r
		}
	}
}

// WithQueue hands deferrable actions to q instead of running them in-line.
func WithQueue(q *Queue) EngineOption {
	return func(e *Engine) { e.queue = q }
}

// WithClock overrides the timestamp source for log rows.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.exec.now = now }
}

// NewEngine creates an engine.
func NewEngine(rules RuleStore, logs LogStore, registry *Registry, logger *logrus.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		rules:    rules,
		registry: registry,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		exec: &executor{
			logs:     logs,
			recorder: nopRecorder{},
			logger:   logger,
			now:      time.Now,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the handler registry the engine dispatches through.
func (e *Engine) Registry() *Registry { return e.registry }

// Run evaluates every active rule of board for kind against evt.
//
// A trigger code without a handler is a silent no-op. Rules whose condition
// does not hold are skipped without a log row. Each matched rule gets exactly
// one row: success, or failed with the error. A failing or panicking action
// never stops the remaining rules. Only storage failures are returned.
func (e *Engine) Run(ctx context.Context, boardID uint, kind TriggerKind, evt *Event) (RunSummary, error) {
	var summary RunSummary
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "automation.run", trace.WithAttributes(
		attribute.String("automation.trigger", string(kind)),
		attribute.Int64("automation.board_id", int64(boardID)),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("automation.matched", summary.Matched),
			attribute.Int("automation.failed", summary.Failed),
		)
		span.End()
		e.exec.recorder.ObserveRun(string(kind), time.Since(start))
	}()

	if evt == nil {
		evt = NewEvent(kind, nil)
	}
	evt.Kind = kind
	evt.BoardID = boardID

	rules, err := e.rules.FindActiveRules(ctx, boardID, string(kind))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find rules")
		return summary, fmt.Errorf("automation: find rules for board %d: %w", boardID, err)
	}
	if len(rules) == 0 {
		return summary, nil
	}

	trigger, ok := e.registry.Trigger(kind)
	if !ok {
		e.logger.Debugf("automation: no trigger handler for %q, skipping %d rules", kind, len(rules))
		return summary, nil
	}

	for i := range rules {
		rule := &rules[i]
		summary.Evaluated++
		if !e.matches(trigger, rule, evt) {
			continue
		}
		summary.Matched++
		if err := e.dispatch(ctx, rule, evt, &summary); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write log")
			return summary, err
		}
	}
	return summary, nil
}

// matches evaluates the condition; a panicking condition counts as no match.
func (e *Engine) matches(trigger TriggerHandler, rule *models.AutomationRule, evt *Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("rule_id", rule.ID).Errorf("automation: condition panicked: %v", r)
			ok = false
		}
	}()
	return trigger.CheckCondition(rule, evt)
}

func (e *Engine) dispatch(ctx context.Context, rule *models.AutomationRule, evt *Event, summary *RunSummary) error {
	action, ok := e.registry.Action(ActionKind(rule.ActionType))
	if !ok {
		summary.Failed++
		return e.exec.failure(ctx, rule, evt, errNoActionHandler, nil)
	}

	if d, ok := action.(Deferrable); ok && d.Deferred() && e.queue != nil {
		if err := e.queue.Enqueue(NewTask(rule, evt)); err != nil {
			summary.Failed++
			return e.exec.failure(ctx, rule, evt, err, nil)
		}
		summary.Deferred++
		return nil
	}

	// snapshot before the action mutates the item
	snapshot := evt.Snapshot()
	if err := e.exec.execute(ctx, action, rule, evt); err != nil {
		summary.Failed++
		return e.exec.failure(ctx, rule, evt, err, snapshot)
	}
	summary.Succeeded++
	return e.exec.success(ctx, rule, evt, snapshot)
}
