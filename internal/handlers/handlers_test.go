package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"learnbot/internal/auth"
	"learnbot/internal/config"
	"learnbot/internal/database"
	"learnbot/internal/models"
	"learnbot/internal/schedule"
	"learnbot/internal/services"
	"learnbot/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type fakeSweep struct {
	calls  int
	report services.Report
	err    error
}

func (f *fakeSweep) Run(context.Context) (services.Report, error) {
	f.calls++
	return f.report, f.err
}

type testServer struct {
	router *gin.Engine
	tokens *auth.TokenService
	sweep  *fakeSweep
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	fc := clock.NewFake()
	fc.Set(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
	policy := schedule.NewPolicy(time.UTC, fc)
	log := zap.NewNop().Sugar()

	tokens, err := auth.NewTokenService("test-secret", time.Hour, fc)
	require.NoError(t, err)

	sweep := &fakeSweep{}
	h := New(
		store.NewReminders(db, policy),
		store.NewPartnerships(db, fc, 24*time.Hour),
		store.NewPreferences(db, "Master"),
		sweep,
		policy,
		log,
	)

	router, err := NewRouter(config.APIConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		TrustedProxies: []string{"127.0.0.1"},
	}, h, tokens, log)
	require.NoError(t, err)

	return &testServer{router: router, tokens: tokens, sweep: sweep}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/servers/S1/reminders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndListReminders(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)

	w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.ReminderView](t, w)
	assert.Equal(t, "Kanji", first.DisplayName)
	assert.Equal(t, "Daily", first.FrequencyLabel)
	assert.Equal(t, 1, first.SerialNumber)
	assert.True(t, first.NextFireAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))

	w = s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{
		"item_name": "Kanji",
		"frequency": "weekly",
		"image_ref": gin.H{"channel_id": "C1", "message_id": "M1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[models.ReminderView](t, w)
	assert.Equal(t, "Kanji #2", second.DisplayName)
	assert.Equal(t, "Weekly", second.FrequencyLabel)
	assert.Equal(t, "M1", second.ImageRef.Data().MessageID)

	w = s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji", "frequency": "hourly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"frequency": "daily"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/servers/S1/reminders", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Reminders []models.ReminderView `json:"reminders"`
		Count     int                   `json:"count"`
	}](t, w)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "Kanji #1", list.Reminders[0].DisplayName)

	w = s.do(t, http.MethodGet, "/servers/S2/reminders", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestPartnerSeesItems(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)
	u2 := s.token(t, "U2", auth.RoleUser)

	w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/servers/S1/partnerships", u1, gin.H{"user_id": "U2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/servers/S1/partnerships/accept", u2, gin.H{"inviter_id": "U1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/servers/S1/partnerships/partner", u2, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"partner_id":"U1"`)

	w = s.do(t, http.MethodGet, "/servers/S1/reminders", u2, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Reminders []models.ReminderView `json:"reminders"`
	}](t, w)
	require.Len(t, list.Reminders, 1)
	assert.True(t, list.Reminders[0].PartnerItem)

	// partners can view but not change each other's items
	w = s.do(t, http.MethodDelete, "/servers/S1/reminders?item=Kanji", u2, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/servers/S1/partnerships", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"former_partner":"U2"`)

	w = s.do(t, http.MethodGet, "/servers/S1/partnerships/partner", u2, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPartnershipErrors(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)
	u2 := s.token(t, "U2", auth.RoleUser)

	w := s.do(t, http.MethodPost, "/servers/S1/partnerships", u1, gin.H{"user_id": "U1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/servers/S1/partnerships", u1, gin.H{"user_id": "U2"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/servers/S1/partnerships", u1, gin.H{"user_id": "U2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/servers/S1/partnerships/accept", u2, gin.H{"inviter_id": "U3"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/servers/S1/partnerships/decline", u2, gin.H{"inviter_id": "U1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/servers/S1/partnerships/decline", u2, gin.H{"inviter_id": "U1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/servers/S1/partnerships", u1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenameFrequencyAndDelete(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodPatch, "/servers/S1/reminders/rename", u1, gin.H{"item": "kanji #2", "new_name": "Vocab"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	renamed := decode[models.ReminderView](t, w)
	assert.Equal(t, "Vocab", renamed.DisplayName)
	assert.Equal(t, 1, renamed.SerialNumber)

	w = s.do(t, http.MethodPatch, "/servers/S1/reminders/frequency", u1, gin.H{"item": "Vocab", "frequency": "monthly"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.ReminderView](t, w)
	assert.Equal(t, "Monthly", updated.FrequencyLabel)
	assert.True(t, updated.NextFireAt.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))

	w = s.do(t, http.MethodPatch, "/servers/S1/reminders/frequency", u1, gin.H{"item": "Vocab", "frequency": "yearly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPatch, "/servers/S1/reminders/rename", u1, gin.H{"item": "Missing", "new_name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/servers/S1/reminders?item=" + url.QueryEscape("Kanji #1")
	w = s.do(t, http.MethodDelete, path, u1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodDelete, path, u1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/servers/S1/reminders", u1, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveAndUnarchive(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)
	u2 := s.token(t, "U2", auth.RoleUser)

	w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji", "frequency": "every2days"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/servers/S1/reminders/archive", u1, gin.H{"item": "Kanji"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	archive := decode[models.Archive](t, w)
	assert.Equal(t, models.FrequencyEvery2Days, archive.OriginalFrequency)

	w = s.do(t, http.MethodGet, "/servers/S1/archives", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = s.do(t, http.MethodPost, "/archives/"+archive.ID+"/unarchive", u2, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "only the owner may unarchive")

	w = s.do(t, http.MethodPost, "/archives/"+archive.ID+"/unarchive", u1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	restored := decode[models.ReminderView](t, w)
	assert.Equal(t, "Every 2 Days", restored.FrequencyLabel)
	assert.Equal(t, "Kanji", restored.DisplayName)

	w = s.do(t, http.MethodPost, "/archives/"+archive.ID+"/unarchive", u1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHonorific(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)

	w := s.do(t, http.MethodGet, "/me/honorific", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"honorific":"Master"`)

	w = s.do(t, http.MethodPut, "/me/honorific", u1, gin.H{"honorific": "Senpai"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/me/honorific", u1, nil)
	assert.Contains(t, w.Body.String(), `"honorific":"Senpai"`)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "U1", auth.RoleUser)
	admin := s.token(t, "A1", auth.RoleAdmin)

	w := s.do(t, http.MethodPost, "/admin/sweep", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, s.sweep.calls)

	s.sweep.report = services.Report{RunID: "run-1", Due: 3, Recipients: 2, Delivered: 2, Advanced: 3}
	w = s.do(t, http.MethodPost, "/admin/sweep", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[services.Report](t, w)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 3, report.Advanced)

	s.sweep.err = store.ErrStoreUnavailable
	w = s.do(t, http.MethodPost, "/admin/sweep", admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 2, s.sweep.calls)

	w = s.do(t, http.MethodPost, "/admin/partnerships/expire", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"expired":0`)
}

func TestHandleStoreErrorStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{log: zap.NewNop().Sugar()}

	tests := []struct {
		err    error
		status int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrDuplicate, http.StatusConflict},
		{store.ErrAlreadyPartnered, http.StatusConflict},
		{store.ErrInvitePending, http.StatusConflict},
		{store.ErrSelfPartner, http.StatusBadRequest},
		{store.ErrNoPendingInvite, http.StatusNotFound},
		{store.ErrInvalidInput, http.StatusBadRequest},
		{schedule.ErrInvalidFrequency, http.StatusBadRequest},
		{store.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.handleStoreError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

func TestViewReminderIncludesPartnerItems(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)
	u2 := s.token(t, "U2", auth.RoleUser)
	u3 := s.token(t, "U3", auth.RoleUser)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, gin.H{"item_name": "Kanji", "frequency": "weekly"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := s.do(t, http.MethodPost, "/servers/S1/partnerships", u1, gin.H{"user_id": "U2"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/servers/S1/partnerships/accept", u2, gin.H{"inviter_id": "U1"})
	require.Equal(t, http.StatusOK, w.Code)

	path := "/servers/S1/reminders/item?item=" + url.QueryEscape("kanji #2")

	w = s.do(t, http.MethodGet, path, u1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	own := decode[models.ReminderView](t, w)
	assert.Equal(t, "Kanji #2", own.DisplayName)
	assert.Equal(t, "Weekly", own.FrequencyLabel)
	assert.False(t, own.PartnerItem)

	w = s.do(t, http.MethodGet, path, u2, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shared := decode[models.ReminderView](t, w)
	assert.Equal(t, own.ID, shared.ID)
	assert.True(t, shared.PartnerItem)

	w = s.do(t, http.MethodGet, path, u3, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "strangers cannot see the item")

	w = s.do(t, http.MethodGet, "/servers/S1/reminders/item", u1, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	u1 := s.token(t, "U1", auth.RoleUser)

	for _, item := range []gin.H{
		{"item_name": "Kanji", "frequency": "daily"},
		{"item_name": "Vocab", "frequency": "daily"},
		{"item_name": "Grammar", "frequency": "biweekly"},
	} {
		w := s.do(t, http.MethodPost, "/servers/S1/reminders", u1, item)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := s.do(t, http.MethodPost, "/servers/S1/reminders/archive", u1, gin.H{"item": "Vocab"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/servers/S1/stats", u1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[models.LearningStats](t, w)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.Mastered)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Frequencies[models.FrequencyDaily])
	assert.Equal(t, int64(1), stats.Frequencies[models.FrequencyBiweekly])

	w = s.do(t, http.MethodGet, "/servers/S2/stats", u1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}
