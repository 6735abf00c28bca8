package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/config"
	"github.com/smallbiznis/valora-sleep/internal/http/handler"
)

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	return NewRouter(
		cfg,
		logger,
		handler.NewAuthHandler(nil, nil, logger),
		handler.NewSleepHandler(nil, nil, logger),
		handler.NewAnalysisHandler(nil, logger),
		nil,
	)
}

func TestRouterHealthz(t *testing.T) {
	r := newTestRouter(t, config.Config{ServiceName: "valora-sleep"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouterRegistersAPIRoutes(t *testing.T) {
	r := newTestRouter(t, config.Config{ServiceName: "valora-sleep"})

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /api/whoop/connect",
		"GET /api/whoop/callback",
		"GET /api/whoop/session",
		"POST /api/whoop/disconnect",
		"GET /api/whoop/sleep",
		"GET /api/whoop/snapshot",
		"POST /api/analyze/manual",
		"POST /api/analyze/whoop",
	} {
		require.True(t, registered[want], want)
	}
}

func TestRouterServesUI(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>index</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "app.js"), []byte("console.log(1)"), 0o600))

	r := newTestRouter(t, config.Config{ServiceName: "valora-sleep", UIDistDir: dist})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/app.js", http.StatusOK, "console.log(1)"},
		{"/dashboard", http.StatusOK, "<html>index</html>"},
		{"/api/unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	p, ok := safeJoin("dist", "/assets/app.js")
	require.True(t, ok)
	require.Equal(t, filepath.Join("dist", "assets", "app.js"), p)

	_, ok = safeJoin("dist", "/../secret")
	require.False(t, ok)
}
