package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"boardflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:repo_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...), "failed to migrate")
	return db
}

type boardFixture struct {
	org     models.Organization
	owner   models.User
	member  models.User
	outside models.User
	board   models.Board
	todo    models.Group
	done    models.Group
	status  models.Column
	person  models.Column
	prio    models.Column
}

func seedBoard(t *testing.T, db *gorm.DB) *boardFixture {
	t.Helper()
	f := &boardFixture{}
	f.org = models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&f.org).Error)
	f.owner = models.User{Username: "owner", Email: "owner@acme.test", OrganizationID: f.org.ID}
	f.member = models.User{Username: "alice", Email: "alice@acme.test", OrganizationID: f.org.ID}
	f.outside = models.User{Username: "mallory", Email: "m@else.test", OrganizationID: f.org.ID + 100}
	require.NoError(t, db.Create(&f.owner).Error)
	require.NoError(t, db.Create(&f.member).Error)
	require.NoError(t, db.Create(&f.outside).Error)
	require.NoError(t, db.Model(&f.org).Update("owner_id", f.owner.ID).Error)
	f.org.OwnerID = f.owner.ID

	f.board = models.Board{OrganizationID: f.org.ID, Name: "Roadmap", CreatedByID: f.member.ID}
	require.NoError(t, db.Create(&f.board).Error)
	f.todo = models.Group{BoardID: f.board.ID, Title: "To Do", Position: 0}
	f.done = models.Group{BoardID: f.board.ID, Title: "Done", Position: 1}
	require.NoError(t, db.Create(&f.todo).Error)
	require.NoError(t, db.Create(&f.done).Error)

	// created out of position order on purpose
	f.person = models.Column{BoardID: f.board.ID, Title: "Owner", Type: models.ColumnTypePerson, Position: 2}
	f.status = models.Column{BoardID: f.board.ID, Title: "Status", Type: models.ColumnTypeStatus, Position: 0}
	f.prio = models.Column{BoardID: f.board.ID, Title: "Priority", Type: models.ColumnTypePriority, Position: 1}
	require.NoError(t, db.Create(&f.person).Error)
	require.NoError(t, db.Create(&f.status).Error)
	require.NoError(t, db.Create(&f.prio).Error)
	return f
}

func TestRuleRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	rule := &models.AutomationRule{
		BoardID:       1,
		Name:          "When Status Changed (Done) → Post Update",
		IsActive:      true,
		TriggerType:   "status_change",
		TriggerConfig: datatypes.JSONMap{"value": "Done"},
		ActionType:    "create_update",
		ActionConfig:  datatypes.JSONMap{"message": "done!"},
	}
	require.NoError(t, repo.CreateRule(ctx, rule))
	require.NotZero(t, rule.ID)

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Done", got.TriggerConfig["value"])
	assert.True(t, got.IsActive)

	got.Name = "renamed"
	got.IsActive = false
	got.ActionConfig = datatypes.JSONMap{"message": "changed"}
	require.NoError(t, repo.UpdateRule(ctx, got))

	reloaded, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Name)
	assert.False(t, reloaded.IsActive, "false must be written, not skipped as a zero value")
	assert.Equal(t, "changed", reloaded.ActionConfig["message"])

	require.NoError(t, repo.ToggleRule(ctx, rule.ID, true))
	reloaded, err = repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsActive)

	require.NoError(t, repo.CreateLog(ctx, &models.AutomationLog{RuleID: rule.ID, BoardID: 1, Status: models.AutomationStatusSuccess}))
	require.NoError(t, repo.DeleteRule(ctx, rule.ID))

	_, err = repo.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, total, err := repo.ListLogs(ctx, LogFilter{RuleID: rule.ID})
	require.NoError(t, err)
	assert.Zero(t, total, "history is removed with the rule")
}

func TestRuleRepository_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	assert.ErrorIs(t, repo.DeleteRule(ctx, 999), ErrRuleNotFound)
	assert.ErrorIs(t, repo.ToggleRule(ctx, 999, true), ErrRuleNotFound)
	assert.ErrorIs(t, repo.UpdateRule(ctx, &models.AutomationRule{ID: 999, Name: "x"}), ErrRuleNotFound)
	assert.Error(t, repo.UpdateRule(ctx, &models.AutomationRule{Name: "no id"}))
}

func TestRuleRepository_FindActiveRules(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	mk := func(board uint, trigger string, active bool) *models.AutomationRule {
		r := &models.AutomationRule{BoardID: board, Name: trigger, IsActive: active, TriggerType: trigger, ActionType: "archive_item"}
		require.NoError(t, repo.CreateRule(ctx, r))
		return r
	}
	first := mk(1, "item_created", true)
	mk(1, "item_created", false)
	mk(2, "item_created", true)
	mk(1, "status_change", true)
	second := mk(1, "item_created", true)

	rules, err := repo.FindActiveRules(ctx, 1, "item_created")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, first.ID, rules[0].ID)
	assert.Equal(t, second.ID, rules[1].ID)

	none, err := repo.FindActiveRules(ctx, 3, "item_created")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRuleRepository_ListLogsAndRetention(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		status := models.AutomationStatusSuccess
		if i%2 == 1 {
			status = models.AutomationStatusFailed
		}
		require.NoError(t, repo.CreateLog(ctx, &models.AutomationLog{
			RuleID:     1,
			BoardID:    7,
			ItemID:     uint(10 + i),
			Status:     status,
			Meta:       datatypes.JSONMap{"n": i},
			ExecutedAt: now.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, repo.CreateLog(ctx, &models.AutomationLog{RuleID: 2, BoardID: 8, Status: models.AutomationStatusSuccess}))

	logs, total, err := repo.ListLogs(ctx, LogFilter{BoardID: 7, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, logs, 2)
	assert.Equal(t, uint(10), logs[0].ItemID, "newest first")
	assert.Equal(t, uint(11), logs[1].ItemID)

	page2, _, err := repo.ListLogs(ctx, LogFilter{BoardID: 7, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, uint(12), page2[0].ItemID)

	failed, total, err := repo.ListLogs(ctx, LogFilter{BoardID: 7, Status: models.AutomationStatusFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, failed, 2)

	n, err := repo.DeleteLogsBefore(ctx, now.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	_, total, err = repo.ListLogs(ctx, LogFilter{BoardID: 7})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestBoardRepository_Lookups(t *testing.T) {
	db := setupTestDB(t)
	f := seedBoard(t, db)
	repo := NewBoardRepository(db, 0)
	ctx := context.Background()

	board, err := repo.Board(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", board.Name)
	_, err = repo.Board(ctx, 999)
	assert.ErrorIs(t, err, ErrBoardNotFound)

	g, err := repo.FindGroup(ctx, f.board.ID, f.done.ID)
	require.NoError(t, err)
	assert.Equal(t, "Done", g.Title)
	_, err = repo.FindGroup(ctx, f.board.ID+1, f.done.ID)
	assert.ErrorIs(t, err, ErrNotFound, "groups are board scoped")

	u, err := repo.FindBoardUser(ctx, f.board.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	_, err = repo.FindBoardUser(ctx, f.board.ID, f.outside.ID)
	assert.ErrorIs(t, err, ErrNotFound, "users outside the organization are invisible")

	col, err := repo.FirstColumnOfType(ctx, f.board.ID, models.ColumnTypePerson)
	require.NoError(t, err)
	assert.Equal(t, f.person.ID, col.ID)
	_, err = repo.FirstColumnOfType(ctx, f.board.ID, models.ColumnTypeDate)
	assert.ErrorIs(t, err, ErrNotFound)

	owner, err := repo.OrganizationOwner(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, owner.ID)

	id, err := repo.UserIDByUsername(ctx, f.board.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, f.member.ID, id)
	_, err = repo.UserIDByUsername(ctx, f.board.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoardRepository_OwnerMissing(t *testing.T) {
	db := setupTestDB(t)
	f := seedBoard(t, db)
	require.NoError(t, db.Model(&f.org).Update("owner_id", 0).Error)

	_, err := NewBoardRepository(db, 0).OrganizationOwner(context.Background(), f.board.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoardRepository_ColumnsOrderedAndCached(t *testing.T) {
	db := setupTestDB(t)
	f := seedBoard(t, db)
	repo := NewBoardRepository(db, time.Minute)
	ctx := context.Background()

	cols, err := repo.BoardColumns(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, []uint{f.status.ID, f.prio.ID, f.person.ID}, []uint{cols[0].ID, cols[1].ID, cols[2].ID})

	extra := models.Column{BoardID: f.board.ID, Title: "Due", Type: models.ColumnTypeDate, Position: 3}
	require.NoError(t, db.Create(&extra).Error)

	cols, err = repo.BoardColumns(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 3, "served from cache")

	repo.InvalidateColumns(f.board.ID)
	cols, err = repo.BoardColumns(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 4)
}

func TestBoardRepository_CreateColumnRefreshesCache(t *testing.T) {
	db := setupTestDB(t)
	f := seedBoard(t, db)
	repo := NewBoardRepository(db, time.Minute)
	ctx := context.Background()

	cols, err := repo.BoardColumns(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, cols, 3)

	reviewer := &models.Column{BoardID: f.board.ID, Title: "Reviewer", Type: models.ColumnTypePerson}
	require.NoError(t, repo.CreateColumn(ctx, reviewer))
	assert.NotZero(t, reviewer.ID)
	assert.Equal(t, 3, reviewer.Position)

	cols, err = repo.BoardColumns(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, reviewer.ID, cols[3].ID)
}
