package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logLevel("warning"))
	assert.Equal(t, slog.LevelError, logLevel(" error "))
	assert.Equal(t, slog.LevelInfo, logLevel(""))
}

func TestHandlePing(t *testing.T) {
	rec := httptest.NewRecorder()
	handlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHandleRunDaemon_RejectsOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	handleRunDaemon(rec, httptest.NewRequest(http.MethodDelete, "/run-daemon", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
