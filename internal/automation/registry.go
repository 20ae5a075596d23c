package automation

import (
	"context"
	"sync"

	"boardflow/internal/models"
)

// ConfigField describes one value the rule builder has to collect for a
// handler. Param narrows the picker, e.g. a column field with Param "status"
// only lists status columns.
type ConfigField struct {
	Name  string `json:"name"`
	Type  string `json:"type"` // column, value, group, user, text, number
	Label string `json:"label"`
	Param string `json:"param,omitempty"`
}

// TriggerHandler decides whether a rule matches a live event.
type TriggerHandler interface {
	Kind() TriggerKind
	Name() string
	Description() string
	ConfigSchema() []ConfigField
	CheckCondition(rule *models.AutomationRule, evt *Event) bool
}

// ActionHandler performs the side effect of a matched rule.
type ActionHandler interface {
	Kind() ActionKind
	Name() string
	Description() string
	ConfigSchema() []ConfigField
	Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error
}

// Deferrable is implemented by actions that should run on the background
// queue when one is configured.
type Deferrable interface {
	Deferred() bool
}

// Registry maps trigger and action codes to their handlers. Registering a
// code twice replaces the handler and keeps its original listing position.
type Registry struct {
	mu           sync.RWMutex
	triggers     map[TriggerKind]TriggerHandler
	triggerOrder []TriggerKind
	actions      map[ActionKind]ActionHandler
	actionOrder  []ActionKind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		triggers: make(map[TriggerKind]TriggerHandler),
		actions:  make(map[ActionKind]ActionHandler),
	}
}

// RegisterTrigger adds or replaces the handler for h.Kind().
func (r *Registry) RegisterTrigger(h TriggerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.triggers[h.Kind()]; !exists {
		r.triggerOrder = append(r.triggerOrder, h.Kind())
	}
	r.triggers[h.Kind()] = h
}

// RegisterAction adds or replaces the handler for h.Kind().
func (r *Registry) RegisterAction(h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[h.Kind()]; !exists {
		r.actionOrder = append(r.actionOrder, h.Kind())
	}
	r.actions[h.Kind()] = h
}

// Trigger looks up a trigger handler. ok is false for unknown codes.
func (r *Registry) Trigger(kind TriggerKind) (TriggerHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.triggers[kind]
	return h, ok
}

// Action looks up an action handler. ok is false for unknown codes.
func (r *Registry) Action(kind ActionKind) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.actions[kind]
	return h, ok
}

// Triggers lists trigger handlers in registration order.
func (r *Registry) Triggers() []TriggerHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TriggerHandler, 0, len(r.triggerOrder))
	for _, k := range r.triggerOrder {
		out = append(out, r.triggers[k])
	}
	return out
}

// Actions lists action handlers in registration order.
func (r *Registry) Actions() []ActionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionHandler, 0, len(r.actionOrder))
	for _, k := range r.actionOrder {
		out = append(out, r.actions[k])
	}
	return out
}

// NewDefaultRegistry registers every built-in trigger and action. Actions
// reach storage and collaborators through deps.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	for _, t := range builtinTriggers() {
		r.RegisterTrigger(t)
	}
	for _, a := range builtinActions(deps) {
		r.RegisterAction(a)
	}
	return r
}

// descriptor carries the display metadata shared by every handler.
type descriptor struct {
	name        string
	description string
	schema      []ConfigField
}

func (d descriptor) Name() string        { return d.name }
func (d descriptor) Description() string { return d.description }

func (d descriptor) ConfigSchema() []ConfigField {
	out := make([]ConfigField, len(d.schema))
	copy(out, d.schema)
	return out
}
