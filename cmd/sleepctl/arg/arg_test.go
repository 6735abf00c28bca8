package arg

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	analysisadapter "github.com/smallbiznis/valora-sleep/internal/adapter/analysis"
	"github.com/smallbiznis/valora-sleep/internal/config"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
)

const scoredPage = `{"records":[{
  "id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8",
  "score_state": "SCORED",
  "score": {
    "stage_summary": {"total_in_bed_time_milli": 30272735, "sleep_cycle_count": 3, "disturbance_count": 12},
    "sleep_needed": {"baseline_milli": 27395716, "need_from_sleep_debt_milli": 352230},
    "respiratory_rate": 16.5,
    "sleep_performance_percentage": 98,
    "sleep_consistency_percentage": 90,
    "sleep_efficiency_percentage": 91.5
  }
}]}`

type fixture struct {
	whoop    *httptest.Server
	analysis *httptest.Server
	posts    atomic.Int32
	lastBody atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	f.whoop = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(scoredPage))
	}))
	t.Cleanup(f.whoop.Close)

	f.analysis = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(analysisadapter.SubmissionHeader) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.posts.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rem_sleep":{"average":20,"percentage_difference":5}}`))
	}))
	t.Cleanup(f.analysis.Close)

	cfg := config.Config{
		WhoopClientID:       "client",
		WhoopClientSecret:   "secret",
		WhoopRedirectURI:    "http://localhost:3000/api/whoop/callback",
		WhoopAuthURL:        "https://provider.test/oauth/oauth2/auth",
		WhoopTokenURL:       f.whoop.URL + "/oauth/oauth2/token",
		WhoopAPIBaseURL:     f.whoop.URL,
		WhoopScopes:         []string{"offline", "read:sleep"},
		WhoopTokenStyle:     domainoauth.TokenStyleParams,
		AnalysisURL:         f.analysis.URL,
		StateTTL:            10 * time.Minute,
		TokenTimeout:        time.Second,
		FetchTimeout:        time.Second,
		AnalysisTimeout:     time.Second,
		RetryOnUnauthorized: true,
	}
	prev := loadConfig
	loadConfig = func() (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })

	return f
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuthURL(t *testing.T) {
	newFixture(t)

	out, err := run(t, "auth-url")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	u, err := url.Parse(lines[0])
	require.NoError(t, err)
	require.Equal(t, "client", u.Query().Get("client_id"))
	require.Equal(t, "offline read:sleep", u.Query().Get("scope"))
	require.Equal(t, "state: "+u.Query().Get("state"), lines[1])
}

func TestAnalyzeManual(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "analyze", "manual",
		"--rem-sleep", "20", "--deep-sleep", "30", "--total-sleep", "80",
		"--restfulness", "70", "--efficiency", "90", "--timing", "60", "--latency", "10")
	require.NoError(t, err)
	require.JSONEq(t, `{"rem_sleep":{"average":20,"percentage_difference":5}}`, out)
	require.EqualValues(t, 1, f.posts.Load())

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.lastBody.Load().(string)), &sent))
	require.Equal(t, "manual", sent["route"])
}

func TestAnalyzeManualRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, "analyze", "manual",
		"--rem-sleep", "0", "--deep-sleep", "30", "--total-sleep", "80",
		"--restfulness", "70", "--efficiency", "90", "--timing", "60", "--latency", "10")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rem_sleep")
	require.EqualValues(t, 0, f.posts.Load())
}

func TestAnalyzeManualRequiresFlags(t *testing.T) {
	newFixture(t)

	_, err := run(t, "analyze", "manual", "--rem-sleep", "20")
	require.Error(t, err)
}

func TestSnapshotRequiresToken(t *testing.T) {
	newFixture(t)
	t.Setenv("WHOOP_ACCESS_TOKEN", "")
	t.Setenv("WHOOP_REFRESH_TOKEN", "")

	_, err := run(t, "snapshot")
	require.ErrorContains(t, err, "access token required")
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	t.Setenv("WHOOP_ACCESS_TOKEN", "good-token")

	out, err := run(t, "snapshot")
	require.NoError(t, err)

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, 16.5, got["score"]["respiratory_rate"])
	require.EqualValues(t, 0, f.posts.Load())
}

func TestSnapshotAnalyze(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "snapshot", "--access-token", "good-token", "--analyze")
	require.NoError(t, err)
	require.Contains(t, out, `"analysis"`)
	require.Contains(t, out, `"snapshot"`)
	require.EqualValues(t, 1, f.posts.Load())
}

func TestSnapshotUnauthorized(t *testing.T) {
	newFixture(t)

	_, err := run(t, "snapshot", "--access-token", "stale-token")
	require.Error(t, err)
}
