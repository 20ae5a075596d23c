package services

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"boardflow/internal/automation"
	"boardflow/internal/models"
	"boardflow/internal/notify"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:svc_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakePusher struct {
	mu   sync.Mutex
	sent map[uint][]notify.Message
}

func (p *fakePusher) SendToUser(userID uint, msg notify.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[uint][]notify.Message{}
	}
	p.sent[userID] = append(p.sent[userID], msg)
}

type fakeMailer struct {
	mu    sync.Mutex
	to    [][]string
	err   error
	calls int
}

func (m *fakeMailer) Send(_ context.Context, _, _ string, recipients []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, recipients)
	return nil
}

// testEnv is one organization with a single board, wired exactly like the
// server does it minus the background queue.
type testEnv struct {
	db       *gorm.DB
	boards   repository.BoardRepository
	rules    repository.RuleRepository
	registry *automation.Registry
	items    *ItemService
	updates  *UpdateService
	notes    *NotificationService
	ruleSvc  *RuleService
	pusher   *fakePusher
	mailer   *fakeMailer

	owner, creator, alice models.User
	board                 models.Board
	todo, done            models.Group
	status, person, prio  models.Column
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	logger := quietLogger()
	env := &testEnv{db: db, pusher: &fakePusher{}, mailer: &fakeMailer{}}

	org := models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	env.owner = models.User{Username: "boss", Email: "boss@acme.test", OrganizationID: org.ID}
	env.creator = models.User{Username: "creator", Email: "creator@acme.test", OrganizationID: org.ID}
	env.alice = models.User{Username: "alice", Email: "alice@acme.test", OrganizationID: org.ID}
	for _, u := range []*models.User{&env.owner, &env.creator, &env.alice} {
		require.NoError(t, db.Create(u).Error)
	}
	require.NoError(t, db.Model(&org).Update("owner_id", env.owner.ID).Error)

	env.board = models.Board{OrganizationID: org.ID, Name: "Roadmap", CreatedByID: env.creator.ID}
	require.NoError(t, db.Create(&env.board).Error)
	env.todo = models.Group{BoardID: env.board.ID, Title: "To Do"}
	env.done = models.Group{BoardID: env.board.ID, Title: "Done", Position: 1}
	require.NoError(t, db.Create(&env.todo).Error)
	require.NoError(t, db.Create(&env.done).Error)
	env.status = models.Column{BoardID: env.board.ID, Title: "Status", Type: models.ColumnTypeStatus}
	env.person = models.Column{BoardID: env.board.ID, Title: "Owner", Type: models.ColumnTypePerson, Position: 1}
	env.prio = models.Column{BoardID: env.board.ID, Title: "Priority", Type: models.ColumnTypePriority, Position: 2}
	for _, c := range []*models.Column{&env.status, &env.person, &env.prio} {
		require.NoError(t, db.Create(c).Error)
	}

	env.boards = repository.NewBoardRepository(db, 0)
	env.rules = repository.NewRuleRepository(db)
	env.items = NewItemService(db, env.boards, logger)
	env.updates = NewUpdateService(db, logger)
	env.notes = NewNotificationService(db, env.pusher, logger)
	env.registry = automation.NewDefaultRegistry(automation.Deps{
		Items:    env.items,
		Boards:   env.boards,
		Updates:  env.updates,
		Notifier: env.notes,
		Mailer:   env.mailer,
		Logger:   logger,
	})
	env.items.SetEngine(automation.NewEngine(env.rules, env.rules, env.registry, logger))
	env.ruleSvc = NewRuleService(env.rules, env.boards, env.registry, logger)
	return env
}

func (env *testEnv) key(c models.Column) string {
	return strconv.FormatUint(uint64(c.ID), 10)
}

func (env *testEnv) addRule(t *testing.T, trigger automation.TriggerKind, triggerCfg map[string]interface{}, action automation.ActionKind, actionCfg map[string]interface{}) *models.AutomationRule {
	t.Helper()
	rule, err := env.ruleSvc.Create(context.Background(), env.board.ID, &AutomationRuleRequest{
		TriggerType:   string(trigger),
		TriggerConfig: triggerCfg,
		ActionType:    string(action),
		ActionConfig:  actionCfg,
	})
	require.NoError(t, err)
	return rule
}

func (env *testEnv) newItem(t *testing.T, name string, values map[string]interface{}) *models.Item {
	t.Helper()
	item, err := env.items.CreateItem(context.Background(), env.todo.ID, &ItemCreateRequest{Name: name, Values: values, CreatedByID: env.alice.ID})
	require.NoError(t, err)
	return item
}

func (env *testEnv) logs(t *testing.T) []models.AutomationLog {
	t.Helper()
	var rows []models.AutomationLog
	require.NoError(t, env.db.Order("id ASC").Find(&rows).Error)
	return rows
}

func (env *testEnv) reload(t *testing.T, id uint) *models.Item {
	t.Helper()
	item, err := env.items.LoadItem(context.Background(), id)
	require.NoError(t, err)
	return item
}
