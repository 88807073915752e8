package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/stretchr/testify/require"
)

func TestResponseJSON(t *testing.T) {
	w := httptest.NewRecorder()
	ResponseJSON(w, map[string]int{"width": 1280})
	require.Equal(t, MimeJSON, w.Header().Get("Content-Type"))
	require.Equal(t, "{\"width\":1280}\n", w.Body.String())
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"status", NewError(http.StatusConflict, errors.New("busy")), http.StatusConflict},
		{"wrapped", errors.Join(errors.New("ctx"), NewError(http.StatusBadRequest, errors.New("size"))), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, tt.err)
			require.Equal(t, tt.code, w.Code)
		})
	}
}

func TestMiddlewareAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := NewHandler(ok, "admin", "secret", "*")

	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "10.0.0.2:5000"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	r.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// localhost without auth
	r = httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestConfigHandler(t *testing.T) {
	prevPath, prevReadOnly := app.ConfigPath, app.ConfigReadOnly
	t.Cleanup(func() { app.ConfigPath, app.ConfigReadOnly = prevPath, prevReadOnly })

	path := filepath.Join(t.TempDir(), "go2cam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera:\n  driver: fake\n"), 0644))
	app.ConfigPath = path
	app.ConfigReadOnly = false

	w := httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("GET", "/api/config", nil))
	require.Equal(t, "camera:\n  driver: fake\n", w.Body.String())

	w = httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("POST", "/api/config", strings.NewReader("camera: [")))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("POST", "/api/config", strings.NewReader("camera:\n  driver: v4l2\n")))
	require.Equal(t, http.StatusOK, w.Code)

	b, _ := os.ReadFile(path)
	require.Equal(t, "camera:\n  driver: v4l2\n", string(b))

	app.ConfigReadOnly = true
	w = httptest.NewRecorder()
	configHandler(w, httptest.NewRequest("POST", "/api/config", strings.NewReader("camera: {}")))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogHandler(t *testing.T) {
	app.MemoryLog.Reset()
	_, _ = app.MemoryLog.Write([]byte(`{"level":"info","message":"[camera] opened"}` + "\n"))

	w := httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("GET", "/api/log", nil))
	require.Contains(t, w.Body.String(), "[camera] opened")

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("DELETE", "/api/log", nil))
	require.Equal(t, "OK", w.Body.String())
	require.Empty(t, app.MemoryLog.Bytes())
}
