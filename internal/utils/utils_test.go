package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/utils"
)

func TestWriteErrorMapsCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{apperr.Conflict(apperr.ReasonItemsInProgress, "in progress"), http.StatusConflict, "ORDER_ITEMS_IN_PROGRESS"},
		{apperr.NotFound(apperr.ReasonOrderNotFound, "missing"), http.StatusNotFound, "ORDER_NOT_FOUND"},
		{apperr.New(apperr.CodeSessionPending, apperr.ReasonSessionPending, "wait"), http.StatusAccepted, "SESSION_PENDING"},
		{errors.New("db down"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		utils.WriteError(rec, logger.NewTestLogger(), "failed", tt.err)

		assert.Equal(t, tt.status, rec.Code)
		var body utils.APIResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tt.reason, body.Reason)
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.WriteError(rec, logger.NewTestLogger(), "failed", errors.New("password=hunter2"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ana"}`))
	require.NoError(t, utils.DecodeJSON(req, &dst))
	assert.Equal(t, "Ana", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := utils.DecodeJSON(req, &dst)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestParseTimeParam(t *testing.T) {
	fallback := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := utils.ParseTimeParam("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = utils.ParseTimeParam("2025-03-14", fallback)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Day())

	got, err = utils.ParseTimeParam("2025-03-14T10:30:00Z", fallback)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	got, err = utils.ParseTimeParam("1700000000", fallback)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.Unix())

	_, err = utils.ParseTimeParam("yesterday", fallback)
	assert.Error(t, err)
}

func TestGenerators(t *testing.T) {
	a, b := utils.GenerateToken(16), utils.GenerateToken(16)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "#0042", utils.FormatOrderNumber(42))
	assert.Equal(t, "#12345", utils.FormatOrderNumber(12345))
}
