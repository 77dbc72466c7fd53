package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorResponseWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponseWithCode(rec, http.StatusConflict, "INVALID_STATE", "cannot approve event from state PENDING",
		map[string]string{"action": "approve event", "state": "PENDING"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"success": false,
		"message": "cannot approve event from state PENDING",
		"error": {
			"code": "INVALID_STATE",
			"message": "cannot approve event from state PENDING",
			"details": {"action": "approve event", "state": "PENDING"}
		}
	}`, rec.Body.String())
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"ok", func(w http.ResponseWriter) { WriteSuccessResponse(w, map[string]int{"n": 1}) }, http.StatusOK, ""},
		{"created", func(w http.ResponseWriter) { WriteCreatedResponse(w, map[string]int{"n": 1}) }, http.StatusCreated, ""},
		{"message", func(w http.ResponseWriter) { WriteSuccessMessage(w, "Event approved", map[string]int{"n": 1}) }, http.StatusOK, "Event approved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)

			var resp struct {
				Success bool           `json:"success"`
				Message string         `json:"message"`
				Data    map[string]int `json:"data"`
				Error   *APIError      `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Message)
			assert.Equal(t, 1, resp.Data["n"])
			assert.Nil(t, resp.Error)
		})
	}
}
