package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/models"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type resolverFunc func(ctx context.Context, identityID string) (*models.Principal, error)

func (f resolverFunc) Resolve(ctx context.Context, identityID string) (*models.Principal, error) {
	return f(ctx, identityID)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	tokens := utils.NewJWTService("middleware-secret", time.Hour)
	token, _, err := tokens.GenerateToken(&models.Identity{ID: "id-1", Handle: "ana.ruiz", Role: models.RoleLeader})
	require.NoError(t, err)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r.Context())
		require.True(t, ok)
		utils.WriteSuccessResponse(w, p)
	})

	tests := []struct {
		name     string
		header   string
		resolver resolverFunc
		want     int
	}{
		{
			name:   "valid token",
			header: "Bearer " + token,
			resolver: func(ctx context.Context, id string) (*models.Principal, error) {
				return &models.Principal{IdentityID: id, Role: models.RolePastor}, nil
			},
			want: http.StatusOK,
		},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{
			name:   "deactivated identity",
			header: "Bearer " + token,
			resolver: func(ctx context.Context, id string) (*models.Principal, error) {
				return nil, &services.UnauthorizedError{Message: "this account has been deactivated"}
			},
			want: http.StatusUnauthorized,
		},
		{
			name:   "storage failure",
			header: "Bearer " + token,
			resolver: func(ctx context.Context, id string) (*models.Principal, error) {
				return nil, errors.New("connection refused")
			},
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := tt.resolver
			if resolver == nil {
				resolver = func(ctx context.Context, id string) (*models.Principal, error) {
					t.Fatal("resolver should not be called")
					return nil, nil
				}
			}
			handler := AuthMiddleware(tokens, resolver, discardLogger())(echo)

			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequirePrincipal(t *testing.T) {
	_, err := RequirePrincipal(context.Background())
	assert.Error(t, err)

	ctx := WithPrincipal(context.Background(), &models.Principal{IdentityID: "id-1", Role: models.RoleLeader})
	p, err := RequirePrincipal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.IdentityID)
}

type decodeTarget struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantCode  string
		wantField string
	}{
		{name: "valid", body: `{"name":"Ana"}`, wantOK: true},
		{name: "empty body", body: ``, wantCode: "BAD_REQUEST"},
		{name: "malformed", body: `{"name":`, wantCode: "BAD_REQUEST"},
		{name: "unknown field", body: `{"name":"Ana","extra":1}`, wantCode: "BAD_REQUEST"},
		{name: "missing required", body: `{}`, wantCode: "VALIDATION_ERROR", wantField: "name"},
		{name: "bad email", body: `{"name":"Ana","email":"nope"}`, wantCode: "VALIDATION_ERROR", wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var target decodeTarget
			ok := DecodeAndValidate(rec, req, &target)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "Ana", target.Name)
				return
			}

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeEnvelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantField != "" {
				assert.Contains(t, resp.Error.Message, tt.wantField)
			}
		})
	}
}

func TestContentTypeJSON(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := ContentTypeJSON(next)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// 无请求体的操作不要求 Content-Type
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	t.Run("production hides details", func(t *testing.T) {
		handler := Recovery(&config.Config{Environment: "production"}, discardLogger())(panicky)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeEnvelope(t, rec)
		require.NotNil(t, resp.Error)
		assert.NotContains(t, resp.Error.Message, "boom")
	})

	t.Run("development shows panic", func(t *testing.T) {
		handler := Recovery(&config.Config{Environment: "development"}, discardLogger())(panicky)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeEnvelope(t, rec)
		require.NotNil(t, resp.Error)
		assert.Contains(t, resp.Error.Message, "boom")
	})
}

func TestNormalize(t *testing.T) {
	var seenPath, seenHost string
	handler := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		seenHost = r.Host
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/events/abc%20", nil)
	req.Header.Set("X-Forwarded-Host", "admin.iglesia.test")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "/api/events/abc", seenPath)
	assert.Equal(t, "admin.iglesia.test", seenHost)
}
