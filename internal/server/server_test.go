package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	User   domain.User
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	u, err := e.CreateUser(context.Background(), engine.CreateUserOptions{Email: "test@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api/v1",
		Auth:     AuthConfig{AllowDevHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		User:   u,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorEnvelope(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("parse error envelope: %v (%s)", err, data)
	}
	return payload.Error.Code, payload.Error.Details
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/decisions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestLockBeforeWindowCloses(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"title":    "Move house",
		"category": "housing",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision: %d (%s)", res.StatusCode, data)
	}
	var d domain.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("parse decision: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/decisions/"+d.ID+"/lock", nil, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", res.StatusCode, data)
	}
	code, details := errorEnvelope(t, data)
	if code != "too_early" {
		t.Fatalf("code = %s, want too_early", code)
	}
	if details["locks_at"] != d.DiscussionEndsAt {
		t.Fatalf("locks_at = %v, want %s", details["locks_at"], d.DiscussionEndsAt)
	}
}

func TestFrozenTopicReturns423(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/topics", map[string]any{
		"topic": "Money",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add topic: %d (%s)", res.StatusCode, data)
	}
	var topic domain.Topic
	if err := json.Unmarshal(data, &topic); err != nil {
		t.Fatalf("parse topic: %v", err)
	}

	discussURL := srv.URL + "/api/v1/topics/" + topic.ID + "/discussions"
	for i := 0; i < 3; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPost, discussURL, nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("discussion %d: %d (%s)", i, res.StatusCode, data)
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, discussURL, nil, auth)
	if res.StatusCode != http.StatusLocked {
		t.Fatalf("status = %d, want 423 (%s)", res.StatusCode, data)
	}
	code, details := errorEnvelope(t, data)
	if code != "locked" {
		t.Fatalf("code = %s, want locked", code)
	}
	if details["freeze_until"] == nil || details["freeze_until"] == "" {
		t.Fatalf("freeze_until missing: %v", details)
	}
}

func TestDuplicateTopicConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/topics", map[string]any{
		"topic": "  Budget Talks ",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add topic: %d", res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/topics", map[string]any{
		"topic": "budget talks",
	}, auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", res.StatusCode, data)
	}
}

func TestOverrideRateLimit429(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"title":    "Holiday plans",
		"category": "travel",
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision: %d (%s)", res.StatusCode, data)
	}
	var d domain.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("parse decision: %v", err)
	}

	for i := 0; i < 5; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/overrides", map[string]any{
			"reason":      fmt.Sprintf("emergency %d", i),
			"decision_id": d.ID,
		}, auth)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("override %d: %d (%s)", i, res.StatusCode, data)
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/overrides", map[string]any{
		"reason":      "one too many",
		"decision_id": d.ID,
	}, auth)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", res.StatusCode, data)
	}
	code, _ := errorEnvelope(t, data)
	if code != "rate_limited" {
		t.Fatalf("code = %s, want rate_limited", code)
	}
}

func TestOverrideRequiresOneTarget(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/overrides", map[string]any{
		"reason": "no target",
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", res.StatusCode, data)
	}
}

func TestUnknownDecisionIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/decisions/nope", nil, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestLockAtExactWindowClose(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := map[string]string{"X-User-Id": srv.User.ID}

	// Pin the clock, create, then jump to exactly the window close.
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	srv.Engine.Now = func() time.Time { return now }

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/decisions", map[string]any{
		"title":            "Summer camp",
		"category":         "kids",
		"discussion_hours": 1,
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create decision: %d (%s)", res.StatusCode, data)
	}
	var d domain.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("parse decision: %v", err)
	}

	now = now.Add(1 * time.Hour)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/decisions/"+d.ID+"/lock", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("lock at exact close: %d (%s)", res.StatusCode, data)
	}
	var locked domain.Decision
	if err := json.Unmarshal(data, &locked); err != nil {
		t.Fatalf("parse decision: %v", err)
	}
	if locked.Status != "locked" {
		t.Fatalf("status = %s, want locked", locked.Status)
	}
}
