package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var routerNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	db      *database.LocalDatabase
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.NewLocalDatabase("")
	require.NoError(t, err)

	cfg := &config.Config{
		Environment:      "test",
		Port:             "0",
		UseLocalDB:       true,
		JWTSecret:        "router-test-secret",
		TokenTTL:         time.Hour,
		PasswordHashCost: bcrypt.MinCost,
		AllowedOrigins:   []string{"*"},
		RequestTimeout:   5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewRouter(cfg, db, Options{Logger: logger, Now: func() time.Time { return routerNow }})

	ts := &testServer{t: t, handler: handler, db: db}
	ts.seedPastor()
	return ts
}

func (ts *testServer) seedPastor() {
	ctx := context.Background()
	birth := time.Date(1970, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &models.Person{
		Names: "Pedro", Surnames: "Santos", NationalID: "1700000001", Email: "pastor@iglesia.test",
		Phone: "0999999999", Gender: "M", BirthDate: &birth, Address: "Quito",
	}
	require.NoError(ts.t, ts.db.CreatePerson(ctx, p))
	hash, err := bcrypt.GenerateFromPassword([]byte("pastor-pass"), bcrypt.MinCost)
	require.NoError(ts.t, err)
	require.NoError(ts.t, ts.db.CreateIdentity(ctx, &models.Identity{
		PersonID: p.ID, Handle: "pedro.santos", PasswordHash: string(hash), Active: true, Role: models.RolePastor,
	}))
}

func (ts *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (ts *testServer) login(identifier, password string) string {
	ts.t.Helper()
	status, env := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(ts.t, http.StatusOK, status, env.Message)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(ts.t, out.Token)
	return out.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type personData struct {
	Person models.Person `json:"person"`
}

type ministryData struct {
	Ministry models.Ministry `json:"ministry"`
}

type eventData struct {
	Event models.Event `json:"event"`
}

func completePerson(names, surnames, nationalID string) map[string]interface{} {
	return map[string]interface{}{
		"names":       names,
		"surnames":    surnames,
		"national_id": nationalID,
		"email":       nationalID + "@iglesia.test",
		"phone":       "0988888888",
		"gender":      "F",
		"birth_date":  "1990-05-10T00:00:00Z",
		"address":     "Av. Amazonas",
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	health := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "church-admin-backend", health["service"])
	assert.Equal(t, "healthy", health["db_status"])
	assert.Equal(t, "local", health["database"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(http.MethodGet, "/api/ministries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = ts.do(http.MethodGet, "/api/ministries", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": "pedro.santos",
		"password":   "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestEventApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	pastor := ts.login("pedro.santos", "pastor-pass")

	status, env := ts.do(http.MethodPost, "/api/people", pastor, completePerson("María José", "López Vera", "0912345678"))
	require.Equal(t, http.StatusCreated, status, env.Message)
	person := decode[personData](t, env.Data).Person

	status, env = ts.do(http.MethodPost, "/api/leaders/promote", pastor, map[string]string{
		"person_id": person.ID,
		"role":      "leader",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	promoted := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "maría.lópez", promoted["handle"])
	assert.Equal(t, "0912345678", promoted["credential"])
	leaderID := promoted["identity_id"].(string)

	status, env = ts.do(http.MethodPost, "/api/ministries", pastor, map[string]string{"name": "Jóvenes"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	ministry := decode[ministryData](t, env.Data).Ministry

	status, env = ts.do(http.MethodPut, "/api/ministries/"+ministry.ID+"/leaders", pastor, map[string][]string{
		"identity_ids": {leaderID},
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	assigned := decode[ministryData](t, env.Data).Ministry
	require.Len(t, assigned.Leaders, 1)
	assert.Equal(t, leaderID, assigned.Leaders[0].IdentityID)

	leader := ts.login("maría.lópez", "0912345678")

	status, env = ts.do(http.MethodPost, "/api/events", leader, map[string]string{
		"ministry_id": ministry.ID,
		"name":        "Retiro juvenil",
		"starts_at":   "2026-11-01T18:00:00Z",
		"ends_at":     "2026-11-01T21:00:00Z",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	event := decode[eventData](t, env.Data).Event
	assert.Equal(t, models.EventPending, event.State)

	status, env = ts.do(http.MethodPost, "/api/events/"+event.ID+"/review", leader, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, models.EventInReview, decode[eventData](t, env.Data).Event.State)

	// 领袖不能审批
	status, env = ts.do(http.MethodPost, "/api/events/"+event.ID+"/decision", leader, map[string]bool{"approve": true})
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = ts.do(http.MethodPost, "/api/events/"+event.ID+"/decision", pastor, map[string]bool{"approve": true})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "Event approved", env.Message)
	assert.Equal(t, models.EventApproved, decode[eventData](t, env.Data).Event.State)

	status, env = ts.do(http.MethodPost, "/api/events/"+event.ID+"/review", leader, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	status, env = ts.do(http.MethodPost, "/api/events/"+event.ID+"/cancel", leader, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, models.EventCancelled, decode[eventData](t, env.Data).Event.State)
}

func TestAssignLeadersReportsIncompleteData(t *testing.T) {
	ts := newTestServer(t)
	pastor := ts.login("pedro.santos", "pastor-pass")

	status, env := ts.do(http.MethodPost, "/api/people", pastor, completePerson("Juan", "Pérez", "1712345678"))
	require.Equal(t, http.StatusCreated, status, env.Message)
	person := decode[personData](t, env.Data).Person

	status, env = ts.do(http.MethodPost, "/api/leaders/promote", pastor, map[string]string{
		"person_id": person.ID,
		"role":      "leader",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	leaderID := decode[map[string]interface{}](t, env.Data)["identity_id"].(string)

	status, env = ts.do(http.MethodPost, "/api/ministries", pastor, map[string]string{"name": "Misiones"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	ministry := decode[ministryData](t, env.Data).Ministry

	assign := func() (int, envelope) {
		return ts.do(http.MethodPut, "/api/ministries/"+ministry.ID+"/leaders", pastor, map[string][]string{
			"identity_ids": {leaderID},
		})
	}
	status, env = assign()
	require.Equal(t, http.StatusOK, status, env.Message)

	// PUT 以请求体整体替换资料，未提供的字段被清空
	status, env = ts.do(http.MethodPut, "/api/people/"+person.ID, pastor, map[string]string{
		"names":       "Juan",
		"surnames":    "Pérez",
		"national_id": "1712345678",
	})
	require.Equal(t, http.StatusOK, status, env.Message)

	// 已有的领袖关系不会因资料变更而被撤销
	status, env = ts.do(http.MethodGet, "/api/ministries/"+ministry.ID, pastor, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[ministryData](t, env.Data).Ministry.Leaders, 1)

	status, env = assign()
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INCOMPLETE_DATA", env.Error.Code)

	var details []struct {
		IdentityID    string   `json:"identity_id"`
		FullName      string   `json:"full_name"`
		MissingFields []string `json:"missing_fields"`
	}
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	require.Len(t, details, 1)
	assert.Equal(t, leaderID, details[0].IdentityID)
	assert.Equal(t, "Juan Pérez", details[0].FullName)
	assert.Equal(t, []string{"email", "phone", "gender", "birth_date", "address"}, details[0].MissingFields)

	status, env = ts.do(http.MethodGet, "/api/ministries/"+ministry.ID, pastor, nil)
	require.Equal(t, http.StatusOK, status)
	leaders := decode[ministryData](t, env.Data).Ministry.Leaders
	require.Len(t, leaders, 1)
	assert.Equal(t, leaderID, leaders[0].IdentityID)
}

func TestDisableMinistryWithScheduledEvent(t *testing.T) {
	ts := newTestServer(t)
	pastor := ts.login("pedro.santos", "pastor-pass")

	status, env := ts.do(http.MethodPost, "/api/ministries", pastor, map[string]string{"name": "Diaconía"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	ministry := decode[ministryData](t, env.Data).Ministry

	status, env = ts.do(http.MethodPost, "/api/events", pastor, map[string]string{
		"ministry_id": ministry.ID,
		"name":        "Colecta",
		"starts_at":   "2026-11-08T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	event := decode[eventData](t, env.Data).Event

	status, env = ts.do(http.MethodPost, "/api/ministries/"+ministry.ID+"/disable", pastor, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	status, _ = ts.do(http.MethodPost, "/api/events/"+event.ID+"/cancel", pastor, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = ts.do(http.MethodPost, "/api/ministries/"+ministry.ID+"/disable", pastor, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.False(t, decode[ministryData](t, env.Data).Ministry.Active)
}

func TestCreateEventValidation(t *testing.T) {
	ts := newTestServer(t)
	pastor := ts.login("pedro.santos", "pastor-pass")

	status, env := ts.do(http.MethodPost, "/api/ministries", pastor, map[string]string{"name": "Alabanza"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	ministry := decode[ministryData](t, env.Data).Ministry

	t.Run("missing name", func(t *testing.T) {
		status, env := ts.do(http.MethodPost, "/api/events", pastor, map[string]string{
			"ministry_id": ministry.ID,
			"starts_at":   "2026-11-01T18:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})

	t.Run("start in the past", func(t *testing.T) {
		status, env := ts.do(http.MethodPost, "/api/events", pastor, map[string]string{
			"ministry_id": ministry.ID,
			"name":        "Ayer",
			"starts_at":   "2026-10-18T18:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.JSONEq(t, `{"field":"starts_at"}`, string(env.Error.Details))
	})

	t.Run("unknown field", func(t *testing.T) {
		status, _ := ts.do(http.MethodPost, "/api/events", pastor, map[string]string{
			"ministry_id": ministry.ID,
			"name":        "Culto",
			"starts_at":   "2026-11-01T18:00:00Z",
			"color":       "blue",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	status, env := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}
