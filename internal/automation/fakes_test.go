package automation

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"boardflow/internal/models"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeRules struct {
	mu    sync.Mutex
	rules []models.AutomationRule
	err   error
}

func (f *fakeRules) FindActiveRules(_ context.Context, boardID uint, triggerType string) ([]models.AutomationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.AutomationRule
	for _, r := range f.rules {
		if r.BoardID == boardID && r.TriggerType == triggerType && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) GetRule(_ context.Context, id uint) (*models.AutomationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.ID == id {
			rule := r
			return &rule, nil
		}
	}
	return nil, repository.ErrRuleNotFound
}

type fakeLogs struct {
	mu   sync.Mutex
	rows []models.AutomationLog
	err  error
}

func (f *fakeLogs) CreateLog(_ context.Context, log *models.AutomationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	log.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *log)
	return nil
}

func (f *fakeLogs) all() []models.AutomationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AutomationLog, len(f.rows))
	copy(out, f.rows)
	return out
}

type savedItem struct {
	item   models.Item
	origin Origin
}

type fakeItems struct {
	mu     sync.Mutex
	saves  []savedItem
	stored map[uint]*models.Item
	nextID uint
	err    error
}

func newFakeItems(items ...*models.Item) *fakeItems {
	f := &fakeItems{stored: map[uint]*models.Item{}, nextID: 1000}
	for _, it := range items {
		f.stored[it.ID] = it
	}
	return f
}

func (f *fakeItems) SaveItem(_ context.Context, item *models.Item, origin Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if item.ID == 0 {
		f.nextID++
		item.ID = f.nextID
	}
	cp := *item
	cp.Values = make(datatypes.JSONMap, len(item.Values))
	for k, v := range item.Values {
		cp.Values[k] = v
	}
	f.saves = append(f.saves, savedItem{item: cp, origin: origin})
	f.stored[item.ID] = &cp
	return nil
}

func (f *fakeItems) LoadItem(_ context.Context, id uint) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.stored[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeItems) saved() []savedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]savedItem, len(f.saves))
	copy(out, f.saves)
	return out
}

type fakeBoards struct {
	boards  map[uint]*models.Board
	groups  map[uint]*models.Group
	users   map[uint]*models.User
	columns []models.Column
	owner   *models.User
	err     error
}

func (f *fakeBoards) Board(_ context.Context, boardID uint) (*models.Board, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.boards[boardID]; ok {
		return b, nil
	}
	return nil, repository.ErrBoardNotFound
}

func (f *fakeBoards) FindGroup(_ context.Context, boardID, groupID uint) (*models.Group, error) {
	if g, ok := f.groups[groupID]; ok && g.BoardID == boardID {
		return g, nil
	}
	return nil, fmt.Errorf("group %d: %w", groupID, repository.ErrNotFound)
}

func (f *fakeBoards) FindBoardUser(_ context.Context, _ uint, userID uint) (*models.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %d: %w", userID, repository.ErrNotFound)
}

func (f *fakeBoards) FirstColumnOfType(_ context.Context, boardID uint, columnType string) (*models.Column, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.columns {
		if f.columns[i].BoardID == boardID && f.columns[i].Type == columnType {
			col := f.columns[i]
			return &col, nil
		}
	}
	return nil, fmt.Errorf("%s column: %w", columnType, repository.ErrNotFound)
}

func (f *fakeBoards) OrganizationOwner(context.Context, uint) (*models.User, error) {
	if f.owner == nil {
		return nil, fmt.Errorf("owner: %w", repository.ErrNotFound)
	}
	return f.owner, nil
}

func (f *fakeBoards) UserIDByUsername(_ context.Context, _ uint, username string) (uint, error) {
	for id, u := range f.users {
		if u.Username == username {
			return id, nil
		}
	}
	return 0, fmt.Errorf("user %q: %w", username, repository.ErrNotFound)
}

type postedUpdate struct {
	itemID   uint
	authorID uint
	body     string
}

type fakeUpdates struct {
	mu    sync.Mutex
	posts []postedUpdate
	err   error
}

func (f *fakeUpdates) CreateUpdate(_ context.Context, item *models.Item, authorID uint, body string) (*models.ItemUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.posts = append(f.posts, postedUpdate{itemID: item.ID, authorID: authorID, body: body})
	return &models.ItemUpdate{ID: uint(len(f.posts)), ItemID: item.ID, UserID: authorID, Body: body}, nil
}

type sentNotification struct {
	userID  uint
	title   string
	message string
	link    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID uint, title, message, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID, title, message, link})
	return nil
}

type sentMail struct {
	subject    string
	body       string
	recipients []string
}

type fakeMailer struct {
	mu    sync.Mutex
	mails []sentMail
	err   error
	delay time.Duration
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.mails = append(f.mails, sentMail{subject, body, recipients})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mails)
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     int
	outcomes map[string]int
	depth    int
}

func (f *fakeRecorder) ObserveRun(string, time.Duration) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
}

func (f *fakeRecorder) IncOutcome(_, _, status string) {
	f.mu.Lock()
	if f.outcomes == nil {
		f.outcomes = map[string]int{}
	}
	f.outcomes[status]++
	f.mu.Unlock()
}

func (f *fakeRecorder) SetQueueDepth(n int) {
	f.mu.Lock()
	f.depth = n
	f.mu.Unlock()
}

// fixture is one board with two groups, three users and the usual columns.
type fixture struct {
	boards   *fakeBoards
	items    *fakeItems
	updates  *fakeUpdates
	notifier *fakeNotifier
	mailer   *fakeMailer
	deps     Deps
	item     *models.Item
}

const (
	testBoard     = uint(1)
	todoGroup     = uint(10)
	doneGroup     = uint(11)
	statusCol     = uint(100)
	personCol     = uint(101)
	priorityCol   = uint(102)
	dateCol       = uint(103)
	creatorUserID = uint(5)
	aliceID       = uint(6)
	ownerID       = uint(7)
)

func newFixture() *fixture {
	item := &models.Item{
		ID:      42,
		BoardID: testBoard,
		GroupID: todoGroup,
		Name:    "Write docs",
		Values:  datatypes.JSONMap{"100": "Working"},
	}
	f := &fixture{
		boards: &fakeBoards{
			boards: map[uint]*models.Board{testBoard: {ID: testBoard, Name: "Roadmap", CreatedByID: creatorUserID}},
			groups: map[uint]*models.Group{
				todoGroup: {ID: todoGroup, BoardID: testBoard, Title: "To Do"},
				doneGroup: {ID: doneGroup, BoardID: testBoard, Title: "Done"},
				99:        {ID: 99, BoardID: 2, Title: "Elsewhere"},
			},
			users: map[uint]*models.User{
				creatorUserID: {ID: creatorUserID, Username: "creator", Email: "creator@acme.test"},
				aliceID:       {ID: aliceID, Username: "alice", Email: "alice@acme.test"},
				ownerID:       {ID: ownerID, Username: "boss", Email: "boss@acme.test"},
			},
			columns: []models.Column{
				{ID: statusCol, BoardID: testBoard, Type: models.ColumnTypeStatus, Position: 0},
				{ID: personCol, BoardID: testBoard, Type: models.ColumnTypePerson, Position: 1},
				{ID: priorityCol, BoardID: testBoard, Type: models.ColumnTypePriority, Position: 2},
				{ID: dateCol, BoardID: testBoard, Type: models.ColumnTypeDate, Position: 3},
			},
		},
		items:    newFakeItems(item),
		updates:  &fakeUpdates{},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		item:     item,
	}
	f.boards.owner = f.boards.users[ownerID]
	f.deps = Deps{
		Items:    f.items,
		Boards:   f.boards,
		Updates:  f.updates,
		Notifier: f.notifier,
		Mailer:   f.mailer,
		Logger:   quietLogger(),
		Now:      func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
	return f
}

func rule(id uint, trigger TriggerKind, triggerCfg datatypes.JSONMap, action ActionKind, actionCfg datatypes.JSONMap) models.AutomationRule {
	return models.AutomationRule{
		ID:            id,
		BoardID:       testBoard,
		Name:          fmt.Sprintf("rule-%d", id),
		IsActive:      true,
		TriggerType:   string(trigger),
		TriggerConfig: triggerCfg,
		ActionType:    string(action),
		ActionConfig:  actionCfg,
	}
}

// stubAction is a configurable action used to exercise the engine.
type stubAction struct {
	descriptor
	kind     ActionKind
	deferred bool
	run      func(ctx context.Context, rule *models.AutomationRule, evt *Event) error

	mu    sync.Mutex
	calls []uint
}

func (s *stubAction) Kind() ActionKind { return s.kind }
func (s *stubAction) Deferred() bool   { return s.deferred }

func (s *stubAction) Execute(ctx context.Context, rule *models.AutomationRule, evt *Event) error {
	s.mu.Lock()
	s.calls = append(s.calls, rule.ID)
	s.mu.Unlock()
	if s.run != nil {
		return s.run(ctx, rule, evt)
	}
	return nil
}

func (s *stubAction) called() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint, len(s.calls))
	copy(out, s.calls)
	return out
}

type panicTrigger struct{ descriptor }

func (panicTrigger) Kind() TriggerKind { return TriggerItemCreated }

func (panicTrigger) CheckCondition(rule *models.AutomationRule, _ *Event) bool {
	if rule.ID == 2 {
		panic("bad condition")
	}
	return true
}
