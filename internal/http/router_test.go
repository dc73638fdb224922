package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/config"
	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/live"
	"github.com/khaled-alabsi/voting/internal/repo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		Port:        "8080",
		GinMode:     gin.TestMode,
		APIBasePath: "/api/v1",
		BaseURL:     "http://localhost:8080",

		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		SessionTTL: time.Hour,

		// Generous limits so only the dedicated limiter test hits 429.
		RateRPS:   1000,
		RateBurst: 1000,

		IdempotencyTTL: time.Hour,

		OTEL: config.OTELConfig{ServiceName: "voting-test"},
	}
}

// apiClient drives the engine through httptest while carrying the session
// cookie between requests, like a browser would.
type apiClient struct {
	t      *testing.T
	engine *gin.Engine
	cookie *http.Cookie
	token  string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	engine := gin.New()
	RegisterRoutes(engine, db, live.NewHub(), testConfig())
	return &apiClient{t: t, engine: engine}
}

// fresh returns a client sharing the engine but with its own session.
func (a *apiClient) fresh() *apiClient {
	return &apiClient{t: a.t, engine: a.engine}
}

func (a *apiClient) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name == "voting_session_token" && ck.Value != "" {
			a.cookie = ck
		}
	}
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeInto(t, w, &body)
	return body.Code
}

func lunchForm() map[string]any {
	return map[string]any{
		"title":       "Team Lunch",
		"description": "Friday plans",
		"questions": []map[string]any{
			{"text": "Where?", "answers": []string{"Sushi", "Pizza"}},
			{"text": "Dessert?", "answers": []string{"Yes", "No"}},
		},
		"settings": map[string]any{
			"allowAnonymousVoting": true,
			"showResultsToVoters":  true,
		},
	}
}

func TestHealthAndFallbacks(t *testing.T) {
	api := newAPI(t)

	if w := api.do(http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}

	w := api.do(http.MethodGet, "/api/v1/no/such/route", nil, nil)
	if w.Code != http.StatusNotFound || errCode(t, w) != "not_found" {
		t.Fatalf("unknown route = %d %s", w.Code, w.Body.String())
	}

	w = api.do(http.MethodPut, "/api/v1/polls", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method = %d", w.Code)
	}

	if w := api.do(http.MethodGet, "/metrics", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestPollLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)

	// Create: the first request mints a session cookie as a side effect.
	w := api.do(http.MethodPost, "/api/v1/polls", lunchForm(), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var poll domain.Poll
	decodeInto(t, w, &poll)
	if api.cookie == nil {
		t.Fatalf("no session cookie issued")
	}
	if len(poll.Questions) != 2 || len(poll.Answers) != 4 {
		t.Fatalf("aggregate incomplete: %+v", poll)
	}

	// Fetch and dashboard list.
	if w := api.do(http.MethodGet, "/api/v1/polls/"+poll.ID, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	w = api.do(http.MethodGet, "/api/v1/polls", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var page struct {
		Polls      []domain.Poll `json:"polls"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeInto(t, w, &page)
	if page.Pagination.Total != 1 || len(page.Polls) != 1 {
		t.Fatalf("dashboard = %+v", page)
	}

	// A different browser votes.
	voter := api.fresh()
	ballot := map[string]any{"question_id": poll.Questions[0].ID, "answer_id": poll.Answers[0].ID}
	w = voter.do(http.MethodPost, "/api/v1/polls/"+poll.ID+"/votes", ballot, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("vote = %d %s", w.Code, w.Body.String())
	}

	// The same browser on the same question is turned away.
	dup := map[string]any{"question_id": poll.Questions[0].ID, "answer_id": poll.Answers[1].ID}
	w = voter.do(http.MethodPost, "/api/v1/polls/"+poll.ID+"/votes", dup, nil)
	if w.Code != http.StatusConflict || errCode(t, w) != "duplicate_vote" {
		t.Fatalf("duplicate = %d %s", w.Code, w.Body.String())
	}

	// Results are public on this poll.
	w = voter.do(http.MethodGet, "/api/v1/polls/"+poll.ID+"/stats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d %s", w.Code, w.Body.String())
	}
	var stats domain.PollStats
	decodeInto(t, w, &stats)
	if stats.TotalVotes != 1 || stats.UniqueVoters != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// Raw votes and visitors are for the creator only.
	if w := voter.do(http.MethodGet, "/api/v1/polls/"+poll.ID+"/votes", nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("voter read raw votes: %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/api/v1/polls/"+poll.ID+"/votes", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("creator raw votes = %d %s", w.Code, w.Body.String())
	}
	if w := api.do(http.MethodGet, "/api/v1/polls/"+poll.ID+"/visitors", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("creator visitors = %d", w.Code)
	}

	// History: the creator's browser remembers the poll.
	w = api.do(http.MethodGet, "/api/v1/session/history", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	var hist struct {
		History []struct {
			PollID string `json:"poll_id"`
			Role   string `json:"role"`
			Status string `json:"status"`
		} `json:"history"`
	}
	decodeInto(t, w, &hist)
	if len(hist.History) != 1 || hist.History[0].PollID != poll.ID || hist.History[0].Role != "creator" {
		t.Fatalf("history = %+v", hist)
	}

	// Only the creator can delete; then the poll is gone.
	if w := voter.do(http.MethodDelete, "/api/v1/polls/"+poll.ID, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("voter delete = %d", w.Code)
	}
	if w := api.do(http.MethodDelete, "/api/v1/polls/"+poll.ID, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("creator delete = %d %s", w.Code, w.Body.String())
	}
	if w := api.do(http.MethodGet, "/api/v1/polls/"+poll.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
}

func TestVoteIdempotentReplay(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPost, "/api/v1/polls", lunchForm(), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var poll domain.Poll
	decodeInto(t, w, &poll)

	voter := api.fresh()
	// Prime the voter's session so the idempotency identity is stable.
	if w := voter.do(http.MethodGet, "/api/v1/polls/"+poll.ID, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("warmup = %d", w.Code)
	}

	ballot := map[string]any{"question_id": poll.Questions[0].ID, "answer_id": poll.Answers[0].ID}
	hdr := map[string]string{"Idempotency-Key": "submit-once"}

	w = voter.do(http.MethodPost, "/api/v1/polls/"+poll.ID+"/votes", ballot, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first = %d %s", w.Code, w.Body.String())
	}

	// The retry replays instead of conflicting.
	w = voter.do(http.MethodPost, "/api/v1/polls/"+poll.ID+"/votes", ballot, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("retry = %d %s", w.Code, w.Body.String())
	}
	var ack struct {
		Status string `json:"status"`
		Replay bool   `json:"replay"`
	}
	decodeInto(t, w, &ack)
	if ack.Status != "accepted" || !ack.Replay {
		t.Fatalf("ack = %+v", ack)
	}

	// Without the header the dedup index still rejects the double vote.
	w = voter.do(http.MethodPost, "/api/v1/polls/"+poll.ID+"/votes", ballot, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("no-key retry = %d", w.Code)
	}
}

func TestAuthFlowOverHTTP(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPost, "/api/v1/auth/anonymous", map[string]any{"display_name": "Alex"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("anonymous = %d %s", w.Code, w.Body.String())
	}
	var anon struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}
	decodeInto(t, w, &anon)
	if !anon.User.IsAnonymous || anon.Token == "" {
		t.Fatalf("anonymous payload = %+v", anon)
	}

	// Upgrade the anonymous identity in place.
	w = api.do(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email":      "alex@example.com",
		"password":   "correct horse",
		"upgrade_id": anon.User.ID,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}
	var reg struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}
	decodeInto(t, w, &reg)
	if reg.User.ID != anon.User.ID || reg.User.IsAnonymous {
		t.Fatalf("upgrade = %+v", reg.User)
	}

	// Login with good and bad credentials.
	if w := api.do(http.MethodPost, "/api/v1/auth/login", map[string]any{"email": "alex@example.com", "password": "correct horse"}, nil); w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	w = api.do(http.MethodPost, "/api/v1/auth/login", map[string]any{"email": "alex@example.com", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized || errCode(t, w) != "invalid_credentials" {
		t.Fatalf("bad login = %d %s", w.Code, w.Body.String())
	}

	// The bearer token authenticates API calls: polls created with it belong
	// to the user, not the browser session.
	api.token = reg.Token
	w = api.do(http.MethodPost, "/api/v1/polls", lunchForm(), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("authed create = %d %s", w.Code, w.Body.String())
	}
	var poll domain.Poll
	decodeInto(t, w, &poll)
	if poll.CreatorID != reg.User.ID {
		t.Fatalf("creator = %q, want user id %q", poll.CreatorID, reg.User.ID)
	}
}

func TestSignOutExpiresCookie(t *testing.T) {
	api := newAPI(t)

	// Establish a session.
	if w := api.do(http.MethodGet, "/api/v1/session/history", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("warmup = %d", w.Code)
	}
	before := api.cookie.Value

	w := api.do(http.MethodDelete, "/api/v1/session", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("signout = %d %s", w.Code, w.Body.String())
	}

	// The next request gets a fresh session, not the signed-out one resurrected.
	api.cookie = nil
	if w := api.do(http.MethodGet, "/api/v1/session/history", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("post-signout = %d", w.Code)
	}
	if api.cookie == nil || api.cookie.Value == before {
		t.Fatalf("session not rotated after sign-out")
	}
}
