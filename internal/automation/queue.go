package automation

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"boardflow/internal/models"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("action queue full")
	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = errors.New("action queue closed")
)

// DefaultQueueTimeout bounds one deferred action.
const DefaultQueueTimeout = 60 * time.Second

// Task is a deferred action. It references the rule and item by id so the
// worker acts on their current state; ActionConfig is the config as it was
// when the rule matched.
//
// Delivery is at most once per process. EventID identifies the originating
// event for tracing only: nothing deduplicates on it, so an action that is
// not idempotent (create_update, send_email) would repeat if a task were
// ever replayed.
type Task struct {
	RuleID       uint
	ItemID       uint
	BoardID      uint
	EventID      string
	Trigger      TriggerKind
	ActionConfig datatypes.JSONMap
	Context      datatypes.JSONMap
	EnqueuedAt   time.Time
}

// NewTask captures rule and evt for the background path.
func NewTask(rule *models.AutomationRule, evt *Event) Task {
	cfg := make(datatypes.JSONMap, len(rule.ActionConfig))
	for k, v := range rule.ActionConfig {
		cfg[k] = v
	}
	t := Task{
		RuleID:       rule.ID,
		BoardID:      rule.BoardID,
		EventID:      evt.ID,
		Trigger:      evt.Kind,
		ActionConfig: cfg,
		Context:      evt.Snapshot(),
		EnqueuedAt:   time.Now(),
	}
	if evt.Item != nil {
		t.ItemID = evt.Item.ID
	}
	return t
}

// RuleLoader reloads a rule by id.
type RuleLoader interface {
	GetRule(ctx context.Context, id uint) (*models.AutomationRule, error)
}

// ItemLoader reloads an item by id.
type ItemLoader interface {
	LoadItem(ctx context.Context, id uint) (*models.Item, error)
}

// Queue runs deferred actions on a fixed pool of workers.
type Queue struct {
	tasks    chan Task
	registry *Registry
	rules    RuleLoader
	items    ItemLoader
	exec     *executor
	logger   *logrus.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewQueue creates a queue holding up to size pending tasks.
func NewQueue(size int, registry *Registry, rules RuleLoader, items ItemLoader, logs LogStore, recorder Recorder, logger *logrus.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = logrus.New()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:    make(chan Task, size),
		registry: registry,
		rules:    rules,
		items:    items,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		exec: &executor{
			logs:     logs,
			recorder: recorder,
			timeout:  DefaultQueueTimeout,
			logger:   logger,
			now:      time.Now,
		},
	}
}

// SetTimeout changes the per-task deadline.
func (q *Queue) SetTimeout(d time.Duration) {
	q.exec.timeout = d
}

// Start launches workers goroutines. It is a no-op after the first call.
func (q *Queue) Start(workers int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	q.started = true
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Infof("automation: action queue started with %d workers", workers)
}

// Enqueue schedules t without blocking.
func (q *Queue) Enqueue(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		q.exec.recorder.SetQueueDepth(len(q.tasks))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int { return len(q.tasks) }

// Stop stops accepting tasks and waits for the workers to drain the buffer.
// When ctx expires first the in-flight actions are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.exec.recorder.SetQueueDepth(len(q.tasks))
		q.process(t)
	}
}

func (q *Queue) process(t Task) {
	ctx := q.ctx
	log := q.logger.WithFields(logrus.Fields{
		"rule_id":  t.RuleID,
		"item_id":  t.ItemID,
		"event_id": t.EventID,
	})

	rule, err := q.rules.GetRule(ctx, t.RuleID)
	if err != nil {
		if isMissing(err) {
			log.Warn("automation: deferred task dropped, rule missing")
		} else {
			log.Errorf("automation: deferred task dropped, load rule: %v", err)
		}
		return
	}
	item, err := q.items.LoadItem(ctx, t.ItemID)
	if err != nil {
		if isMissing(err) {
			log.Warn("automation: deferred task dropped, item missing")
		} else {
			log.Errorf("automation: deferred task dropped, load item: %v", err)
		}
		return
	}

	run := *rule
	run.ActionConfig = t.ActionConfig
	evt := &Event{ID: t.EventID, Kind: t.Trigger, BoardID: t.BoardID, Item: item}

	action, ok := q.registry.Action(ActionKind(run.ActionType))
	if !ok {
		if err := q.exec.failure(ctx, &run, evt, errNoActionHandler, t.Context); err != nil {
			log.Error(err)
		}
		return
	}
	if err := q.exec.execute(ctx, action, &run, evt); err != nil {
		if werr := q.exec.failure(ctx, &run, evt, err, t.Context); werr != nil {
			log.Error(werr)
		}
		return
	}
	meta := datatypes.JSONMap{}
	for k, v := range t.Context {
		meta[k] = v
	}
	meta["deferred"] = true
	if err := q.exec.success(ctx, &run, evt, meta); err != nil {
		log.Error(err)
	}
}

func isMissing(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
