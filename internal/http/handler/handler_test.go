package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	analysisadapter "github.com/smallbiznis/valora-sleep/internal/adapter/analysis"
	"github.com/smallbiznis/valora-sleep/internal/adapter/whoop"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
	analysissvc "github.com/smallbiznis/valora-sleep/internal/service/analysis"
	authsvc "github.com/smallbiznis/valora-sleep/internal/service/auth"
	sleepsvc "github.com/smallbiznis/valora-sleep/internal/service/sleep"
	"github.com/smallbiznis/valora-sleep/internal/session"
)

type fakeProviderClient struct {
	mu        sync.Mutex
	token     domainoauth.TokenSet
	err       error
	exchanged []string
}

func (f *fakeProviderClient) AuthorizationURL() (string, string, error) {
	return "https://api.prod.whoop.com/oauth/oauth2/auth?state=xyz", "xyz", nil
}

func (f *fakeProviderClient) ExchangeCode(_ context.Context, code string) (domainoauth.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanged = append(f.exchanged, code)
	return f.token, f.err
}

func (f *fakeProviderClient) Refresh(context.Context, string) (domainoauth.TokenSet, error) {
	return f.token, f.err
}

type testServer struct {
	engine   *gin.Engine
	provider *fakeProviderClient
	whoop    *httptest.Server
	analysis *httptest.Server
	posts    int
	mu       sync.Mutex
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{provider: &fakeProviderClient{}}
	ts.whoop = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"id":1,"score_state":"SCORED","score":{"stage_summary":{"total_in_bed_time_milli":1000,"sleep_cycle_count":3,"disturbance_count":1},"sleep_needed":{"baseline_milli":2000,"need_from_sleep_debt_milli":300},"respiratory_rate":14.5,"sleep_performance_percentage":90,"sleep_consistency_percentage":80,"sleep_efficiency_percentage":95}}]}`))
	}))
	ts.analysis = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.posts++
		ts.mu.Unlock()
		_, _ = w.Write([]byte(`{"latency":{"average":40,"percentage_difference":25}}`))
	}))
	t.Cleanup(ts.whoop.Close)
	t.Cleanup(ts.analysis.Close)

	logger := zap.NewNop()
	sessions := session.NewManager(session.CookieOptions{}, nil, 10*time.Minute, logger)
	oauth := authsvc.NewOAuthService(ts.provider, nil, authsvc.Options{PostAuthRedirect: "/#whoop"}, logger)
	sleep := sleepsvc.NewService(whoop.NewHTTPDataClient(ts.whoop.URL, ts.whoop.Client(), time.Second), ts.provider, true, logger)
	gateway := analysissvc.NewGateway(analysisadapter.NewHTTPClient(ts.analysis.URL, ts.analysis.Client(), time.Second), nil, logger)

	authHandler := NewAuthHandler(oauth, sessions, logger)
	sleepHandler := NewSleepHandler(sleep, sessions, logger)
	analysisHandler := NewAnalysisHandler(gateway, logger)

	r := gin.New()
	r.GET("/api/whoop/connect", authHandler.Connect)
	r.GET("/api/whoop/callback", authHandler.Callback)
	r.GET("/api/whoop/session", authHandler.Session)
	r.POST("/api/whoop/disconnect", authHandler.Disconnect)
	r.GET("/api/whoop/sleep", sleepHandler.Sleep)
	r.GET("/api/whoop/snapshot", sleepHandler.Snapshot)
	r.POST("/api/analyze/manual", analysisHandler.Manual)
	r.POST("/api/analyze/whoop", analysisHandler.Whoop)
	ts.engine = r
	return ts
}

func (ts *testServer) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.posts
}

func setCookies(w *httptest.ResponseRecorder) string {
	return strings.Join(w.Header().Values("Set-Cookie"), "\n")
}

func TestConnectRedirectsWithStateCookie(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/connect", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://api.prod.whoop.com/oauth/oauth2/auth?state=xyz", w.Header().Get("Location"))
	require.Contains(t, setCookies(w), "oauth_state=xyz; Path=/; Max-Age=600; HttpOnly; SameSite=Lax")

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/connect?format=json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"authorization_url":"https://api.prod.whoop.com/oauth/oauth2/auth?state=xyz"}`, w.Body.String())
}

func TestCallbackStateMismatch(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.token = domainoauth.TokenSet{AccessToken: "tok", ExpiresIn: 3600}

	req := httptest.NewRequest(http.MethodGet, "/api/whoop/callback?code=c&state=xyz", nil)
	w := ts.do(req, &http.Cookie{Name: session.StateCookie, Value: "abc123"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"Invalid state"}`, w.Body.String())
	require.Empty(t, w.Header().Values("Set-Cookie"))
	require.Empty(t, ts.provider.exchanged)
}

func TestCallbackSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.provider.token = domainoauth.TokenSet{AccessToken: "tok", RefreshToken: "ref", ExpiresIn: 3600}

	req := httptest.NewRequest(http.MethodGet, "/api/whoop/callback?code=c&state=xyz", nil)
	w := ts.do(req, &http.Cookie{Name: session.StateCookie, Value: "xyz"})

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/#whoop", w.Header().Get("Location"))
	header := setCookies(w)
	require.Contains(t, header, "access_token=tok; Path=/; Max-Age=3600; HttpOnly; SameSite=Lax")
	require.Contains(t, header, "authenticated=true; Path=/; Max-Age=3600; SameSite=Lax")
	require.Contains(t, header, "refresh_token=ref; Path=/; Max-Age=2592000; HttpOnly; SameSite=Lax")
	require.Contains(t, header, "oauth_state=; Path=/; Max-Age=0")
	require.Equal(t, []string{"c"}, ts.provider.exchanged)
}

func TestCallbackErrors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		state  string
		err    error
		status int
		body   string
	}{
		{"provider error first", "/api/whoop/callback?error=access_denied&error_description=User+denied", "", nil, http.StatusBadRequest, `{"error":"User denied"}`},
		{"provider error without description", "/api/whoop/callback?error=access_denied&state=xyz", "xyz", nil, http.StatusBadRequest, `{"error":"access_denied"}`},
		{"missing stored state", "/api/whoop/callback?code=c&state=xyz", "", nil, http.StatusBadRequest, `{"error":"Invalid state"}`},
		{"missing code", "/api/whoop/callback?state=xyz", "xyz", nil, http.StatusBadRequest, `{"error":"No code provided"}`},
		{
			"exchange rejected", "/api/whoop/callback?code=c&state=xyz", "xyz",
			&domainoauth.ProviderAuthError{Status: 400, Code: "invalid_grant", Description: "code already used"},
			http.StatusInternalServerError, `{"error":"Failed to get access token: code already used"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.provider.err = tt.err

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			var w *httptest.ResponseRecorder
			if tt.state != "" {
				w = ts.do(req, &http.Cookie{Name: session.StateCookie, Value: tt.state})
			} else {
				w = ts.do(req)
			}
			require.Equal(t, tt.status, w.Code)
			require.JSONEq(t, tt.body, w.Body.String())
			require.Empty(t, w.Header().Values("Set-Cookie"))
		})
	}
}

func TestSleepRequiresAccessToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/sleep", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"Access token not found"}`, w.Body.String())
}

func TestSleepRelaysPage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/sleep?limit=1", nil),
		&http.Cookie{Name: session.AccessTokenCookie, Value: "tok"})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	require.Equal(t, "1", body.Records[0]["id"])
}

func TestSleepRejectsBadQuery(t *testing.T) {
	ts := newTestServer(t)
	cookie := &http.Cookie{Name: session.AccessTokenCookie, Value: "tok"}

	for _, url := range []string{
		"/api/whoop/sleep?limit=abc",
		"/api/whoop/sleep?limit=100",
		"/api/whoop/sleep?start=yesterday",
		"/api/whoop/sleep?start=2024-02-01T00:00:00Z&end=2024-01-01T00:00:00Z",
	} {
		w := ts.do(httptest.NewRequest(http.MethodGet, url, nil), cookie)
		require.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestSleepExpiredTokenWithoutRefresh(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/sleep", nil),
		&http.Cookie{Name: session.AccessTokenCookie, Value: "stale"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSnapshot(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/snapshot", nil),
		&http.Cookie{Name: session.AccessTokenCookie, Value: "tok"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{
		"success": true,
		"data": {"score": {
			"stage_summary": {"total_in_bed_time_milli": 1000, "sleep_cycle_count": 3, "disturbance_count": 1},
			"sleep_needed": {"baseline_milli": 2000, "need_from_sleep_debt_milli": 300},
			"respiratory_rate": 14.5,
			"sleep_performance_percentage": 90,
			"sleep_consistency_percentage": 80,
			"sleep_efficiency_percentage": 95
		}}
	}`, w.Body.String())
}

func TestSessionAndDisconnect(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/session", nil))
	require.JSONEq(t, `{"authenticated":false}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/whoop/session", nil),
		&http.Cookie{Name: session.AuthenticatedCookie, Value: "true"})
	require.JSONEq(t, `{"authenticated":true}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/whoop/disconnect", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	header := setCookies(w)
	for _, name := range []string{"access_token=", "refresh_token=", "authenticated=", "oauth_state="} {
		require.Contains(t, header, name)
	}
	require.Contains(t, header, "Max-Age=0")
}

func TestAnalyzeManual(t *testing.T) {
	ts := newTestServer(t)
	valid := `{"rem_sleep":80,"deep_sleep":70,"total_sleep":90,"restfulness":60,"efficiency":85,"timing":75,"latency":50}`

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/manual", strings.NewReader(valid)))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"latency":{"average":40,"percentage_difference":25}}}`, w.Body.String())
	require.Equal(t, 1, ts.postCount())

	invalid := strings.Replace(valid, `"latency":50`, `"latency":0`, 1)
	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/manual", strings.NewReader(invalid)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"success":false,"error":"latency: must be at least 1"}`, w.Body.String())

	nonNumeric := strings.Replace(valid, `"timing":75`, `"timing":"soon"`, 1)
	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/manual", strings.NewReader(nonNumeric)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"success":false,"error":"timing: must be a number"}`, w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/manual", strings.NewReader("")))
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, 1, ts.postCount())
}

func TestAnalyzeReportsFirstInvalidFieldInDeclaredOrder(t *testing.T) {
	ts := newTestServer(t)
	snapshot := `{"score":{"stage_summary":{"total_in_bed_time_milli":1000,"sleep_cycle_count":"many","disturbance_count":1},"sleep_needed":{"baseline_milli":2000,"need_from_sleep_debt_milli":300},"respiratory_rate":14.5,"sleep_performance_percentage":90,"sleep_consistency_percentage":80,"sleep_efficiency_percentage":140}}`

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{
			"range error before type error", "/api/analyze/manual",
			`{"rem_sleep":500,"deep_sleep":"x","total_sleep":90,"restfulness":60,"efficiency":85,"timing":75,"latency":50}`,
			"rem_sleep: must be at most 100",
		},
		{
			"type error before range error", "/api/analyze/manual",
			`{"rem_sleep":"x","deep_sleep":500,"total_sleep":90,"restfulness":60,"efficiency":85,"timing":75,"latency":50}`,
			"rem_sleep: must be a number",
		},
		{
			"key order in the body does not matter", "/api/analyze/manual",
			`{"latency":"late","rem_sleep":80,"deep_sleep":70,"total_sleep":90,"restfulness":60,"efficiency":0,"timing":75}`,
			"efficiency: must be at least 1",
		},
		{
			"nested snapshot field", "/api/analyze/whoop", snapshot,
			"score.stage_summary.sleep_cycle_count: must be a number",
		},
		{
			"score not an object", "/api/analyze/whoop", `{"score":5}`,
			"score: must be an object",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.JSONEq(t, `{"success":false,"error":"`+tt.want+`"}`, w.Body.String())
		})
	}
	require.Zero(t, ts.postCount())
}

func TestAnalyzeManualUpstreamDown(t *testing.T) {
	ts := newTestServer(t)
	ts.analysis.Close()
	valid := `{"rem_sleep":80,"deep_sleep":70,"total_sleep":90,"restfulness":60,"efficiency":85,"timing":75,"latency":50}`

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/manual", strings.NewReader(valid)))
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.JSONEq(t, `{"success":false,"error":"Failed to analyze sleep data. Please try again."}`, w.Body.String())
}

func TestAnalyzeWhoop(t *testing.T) {
	ts := newTestServer(t)
	body := `{"score":{"stage_summary":{"total_in_bed_time_milli":1000,"sleep_cycle_count":3,"disturbance_count":1},"sleep_needed":{"baseline_milli":2000,"need_from_sleep_debt_milli":300},"respiratory_rate":14.5,"sleep_performance_percentage":90,"sleep_consistency_percentage":80,"sleep_efficiency_percentage":95}}`

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/whoop", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	bad := strings.Replace(body, `"sleep_efficiency_percentage":95`, `"sleep_efficiency_percentage":140`, 1)
	w = ts.do(httptest.NewRequest(http.MethodPost, "/api/analyze/whoop", strings.NewReader(bad)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"success":false,"error":"score.sleep_efficiency_percentage: must be at most 100"}`, w.Body.String())
	require.Equal(t, 1, ts.postCount())
}
