package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/database"
	"boardflow/internal/models"
	"boardflow/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent [][]string
}

func (m *recordingMailer) Send(_ context.Context, _, _ string, to []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:cli_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func call(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApplication_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := newTestDB(t)
	require.NoError(t, database.Migrate(db))

	org := models.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	owner := models.User{Username: "boss", Email: "boss@acme.test", OrganizationID: org.ID}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Model(&org).Update("owner_id", owner.ID).Error)
	board := models.Board{OrganizationID: org.ID, Name: "Roadmap", CreatedByID: owner.ID}
	require.NoError(t, db.Create(&board).Error)
	todo := models.Group{BoardID: board.ID, Title: "To Do"}
	require.NoError(t, db.Create(&todo).Error)

	cfg := config.GetDefaultConfig()
	cfg.Automation.LogRetentionDays = 0
	mailer := &recordingMailer{}
	app, err := newApplication(cfg, db, quietLogger(), mailer)
	require.NoError(t, err)
	app.start(ctx)
	defer app.stop(context.Background())
	r := app.router()

	w := call(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"automation_queue"`)

	w = call(t, r, http.MethodPost, fmt.Sprintf("/api/boards/%d/automations", board.ID), map[string]interface{}{
		"trigger_type": "item_created",
		"action_type":  "send_email",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(t, r, http.MethodPost, fmt.Sprintf("/api/groups/%d/items", todo.ID), map[string]interface{}{"name": "Ship it"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return mailer.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"boss@acme.test"}, mailer.sent[0])

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.AutomationLog{}).Where("status = ?", models.AutomationStatusSuccess).Count(&n)
		return n == 1
	}, 3*time.Second, 10*time.Millisecond)

	w = call(t, r, http.MethodGet, cfg.Monitoring.MetricsPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "boardflow_automation_actions_total")
}

func TestBuildMailer(t *testing.T) {
	m, err := buildMailer(config.MailConfig{}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, notify.NopMailer{}, m)

	_, err = buildMailer(config.MailConfig{URL: "bogus://x"}, quietLogger())
	assert.Error(t, err)
}

func TestMigrate_SeedsCatalog(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, migrate(context.Background(), db, quietLogger(), true, 30))

	var triggers, actions int64
	db.Model(&models.TriggerType{}).Count(&triggers)
	db.Model(&models.ActionType{}).Count(&actions)
	assert.EqualValues(t, 6, triggers)
	assert.EqualValues(t, 11, actions)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "Version: "+Version)
}
