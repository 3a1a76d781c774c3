package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/mathyou/internal/cache"
	"github.com/pavelanni/mathyou/internal/llm"
	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
	"github.com/pavelanni/mathyou/internal/tutor"
)

const (
	testEmail    = "learner@example.com"
	testPassword = "correct-horse"
	testAPIKey   = "admin-secret"
)

func powerRuleSubject() model.SubjectImport {
	q := func(id string, d model.Difficulty, answer, explanation string) model.QuestionImport {
		data, _ := json.Marshal(map[string]any{"type": "numerical", "answer": answer})
		return model.QuestionImport{
			LegacyID: id, ProblemText: "Differentiate " + id, Difficulty: d,
			Explanation: explanation, Data: data,
		}
	}
	return model.SubjectImport{
		Name: "Calculus",
		Slug: "calculus",
		Concepts: []model.ConceptImport{
			{
				Name: "Power Rule", Slug: "power-rule", Formula: "$nx^{n-1}$",
				Questions: []model.QuestionImport{
					q("pr_easy", model.DifficultyEasy, "3x^2", "Bring the exponent down."),
					q("pr_med", model.DifficultyMedium, "12", "Evaluate 6x at 2."),
					q("pr_hard", model.DifficultyHard, "-2", "The exponent is negative."),
				},
			},
			{Name: "Limits", Slug: "limits"},
		},
	}
}

type testEnv struct {
	t      *testing.T
	store  *store.Store
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, completer llm.Completer) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.ImportSubject(powerRuleSubject())
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = s.CreateUser(model.User{Email: testEmail, PasswordHash: string(hash)})
	require.NoError(t, err)

	gen := tutor.NewGenerator(completer, cache.NewMemory(), cache.NewMemory())
	h, err := New(s, gen, model.ServerConfig{AdminAPIKey: testAPIKey})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{t: t, store: s, server: srv, client: client}
}

func (e *testEnv) do(method, path string, body io.Reader, header map[string]string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(e.t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(path string) *http.Response {
	return e.do(http.MethodGet, path, nil, nil)
}

func (e *testEnv) postJSON(path string, v any) *http.Response {
	e.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(e.t, err)
	return e.do(http.MethodPost, path, bytes.NewReader(b), map[string]string{"Content-Type": "application/json"})
}

func (e *testEnv) login() {
	e.t.Helper()
	resp := e.postJSON("/login", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(e.t, true, out["success"])
}

func (e *testEnv) csrfToken() string {
	e.t.Helper()
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	e.t.Fatal("no csrf cookie")
	return ""
}

func (e *testEnv) postForm(path string, form url.Values) *http.Response {
	e.t.Helper()
	form.Set("csrf_token", e.csrfToken())
	return e.do(http.MethodPost, path, strings.NewReader(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) progress() map[string]string {
	e.t.Helper()
	resp := e.get("/api/progress?discipline=calculus")
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	return decode[map[string]string](e.t, resp)
}

type submitResult struct {
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}

func (e *testEnv) submit(id string, answer any) submitResult {
	e.t.Helper()
	resp := e.postJSON("/api/question/submit_answer", map[string]any{"question_id": id, "answer": answer})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	return decode[submitResult](e.t, resp)
}

func TestPowerRuleScenario(t *testing.T) {
	e := newTestEnv(t, nil)

	// Anonymous visitors start at Easy.
	assert.Equal(t, map[string]string{"power-rule": "pr_easy"}, e.progress())
	resp := e.get("/calculus")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `data-question-id="pr_easy"`)
	assert.Contains(t, string(body), "Limits")

	e.login()

	got := e.submit("pr_easy", "3x^2")
	assert.True(t, got.Correct)
	assert.Equal(t, "Bring the exponent down.", got.Explanation)
	assert.Equal(t, "pr_med", e.progress()["power-rule"])

	got = e.submit("pr_med", 12)
	assert.True(t, got.Correct)
	assert.Equal(t, "pr_hard", e.progress()["power-rule"])

	got = e.submit("pr_hard", "2")
	assert.False(t, got.Correct)
	assert.Equal(t, "The exponent is negative.", got.Explanation)
	assert.Equal(t, "pr_hard", e.progress()["power-rule"])

	user, err := e.store.GetUserByEmail(testEmail)
	require.NoError(t, err)
	history, err := e.store.ListResponsesByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "pr_hard", history[0].LegacyID)
	assert.False(t, history[0].Response.IsCorrect)
	assert.Equal(t, "2", history[0].Response.Data.Answer)
	assert.Empty(t, history[0].Response.Data.AIExplanation)

	got = e.submit("pr_hard", " -2 ")
	assert.True(t, got.Correct)
	assert.Equal(t, "gemini_trigger_power-rule", e.progress()["power-rule"])

	resp = e.get("/api/question/gemini_trigger_power-rule")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mastery := decode[map[string]string](t, resp)
	assert.Equal(t, "gemini_trigger_power-rule", mastery["id"])
	assert.Contains(t, mastery["problem"], "Power Rule")
	assert.Equal(t, "Real World Application", mastery["difficulty"])
	assert.Equal(t, "0", mastery["answer"])
}

func TestSubmitAnswerStoresGeneratedFeedback(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Text: "Solid. Now try $x^5$."})
	e := newTestEnv(t, llm.NewChain([]llm.Candidate{{Provider: p, Model: "m"}}, 0))
	e.login()

	got := e.submit("pr_easy", "3x^2")
	assert.True(t, got.Correct)
	assert.Equal(t, "Solid. Now try $x^5$.", got.Explanation)

	user, _ := e.store.GetUserByEmail(testEmail)
	history, err := e.store.ListResponsesByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Solid. Now try $x^5$.", history[0].Response.Data.AIExplanation)
}

func TestSubmitAnswerFeedbackFailureFallsBack(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{}})
	e := newTestEnv(t, llm.NewChain([]llm.Candidate{{Provider: p, Model: "m"}}, 0))
	e.login()

	got := e.submit("pr_easy", "wrong")
	assert.False(t, got.Correct)
	assert.Equal(t, "Bring the exponent down.", got.Explanation)
}

func TestSubmitAnswerErrors(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.postJSON("/api/question/submit_answer", map[string]any{"question_id": "pr_easy", "answer": "1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	e.login()
	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing answer", map[string]any{"question_id": "pr_easy"}, http.StatusBadRequest},
		{"null answer", map[string]any{"question_id": "pr_easy", "answer": nil}, http.StatusBadRequest},
		{"missing id", map[string]any{"answer": "1"}, http.StatusBadRequest},
		{"unknown question", map[string]any{"question_id": "nope", "answer": "1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.postJSON("/api/question/submit_answer", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestQuestionEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.get("/api/question/pr_med")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	q := decode[map[string]any](t, resp)
	assert.Equal(t, "pr_med", q["id"])
	assert.Equal(t, "Medium", q["difficulty"])
	assert.Equal(t, "numerical", q["type"])

	assert.Equal(t, http.StatusNotFound, e.get("/api/question/missing").StatusCode)

	// pr_med has no siblings, so next returns it again.
	resp = e.get("/api/question/next?current_id=pr_med")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pr_med", decode[map[string]any](t, resp)["id"])

	assert.Equal(t, http.StatusBadRequest, e.get("/api/question/next").StatusCode)
	assert.Equal(t, http.StatusNotFound, e.get("/api/question/next?current_id=missing").StatusCode)
}

func TestConceptEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.get("/api/concept?discipline=calculus&concept=power-rule")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decode[map[string]any](t, resp)
	assert.Equal(t, "Power Rule", c["name"])
	assert.Equal(t, []any{"pr_easy", "pr_med", "pr_hard"}, c["questions"])

	assert.Equal(t, http.StatusNotFound, e.get("/api/concept?discipline=calculus&concept=nope").StatusCode)
}

func TestOverviewEndpoint(t *testing.T) {
	p := llm.NewMockProvider(llm.MockResponse{Text: "Welcome, rookie."})
	e := newTestEnv(t, llm.NewChain([]llm.Candidate{{Provider: p, Model: "m"}}, 0))

	for range 2 {
		resp := e.get("/api/overview?discipline=calculus")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Welcome, rookie.", decode[map[string]string](t, resp)["overview"])
	}
	assert.Equal(t, 1, p.CallCount())

	assert.Equal(t, http.StatusBadRequest, e.get("/api/overview").StatusCode)
	assert.Equal(t, http.StatusNotFound, e.get("/api/overview?discipline=nope").StatusCode)
}

func TestOverviewWithoutProvider(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.get("/api/overview?discipline=calculus")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Welcome to Calculus. (AI generation unavailable)", decode[map[string]string](t, resp)["overview"])
}

func TestCreateQuestion(t *testing.T) {
	e := newTestEnv(t, nil)
	payload := map[string]any{
		"subject_slug": "calculus",
		"concept_slug": "power-rule",
		"problem_text": "Differentiate $x^7$.",
		"difficulty":   "Easy",
		"data":         map[string]any{"type": "numerical", "answer": "7x^6"},
	}
	body, _ := json.Marshal(payload)

	resp := e.do(http.MethodPost, "/api/question/create", bytes.NewReader(body), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/question/create", bytes.NewReader(body), map[string]string{apiKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/question/create", bytes.NewReader(body), map[string]string{apiKeyHeader: testAPIKey})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	assert.Regexp(t, regexp.MustCompile(`^power-rule_[0-9a-f]{8}$`), created["id"])

	q, err := e.store.GetQuestionByLegacyID(created["id"])
	require.NoError(t, err)
	assert.Equal(t, model.DifficultyEasy, q.Difficulty)
	assert.Equal(t, "7x^6", q.Data.Answer.String())

	// Duplicate explicit id.
	payload["legacy_id"] = "pr_easy"
	body, _ = json.Marshal(payload)
	resp = e.do(http.MethodPost, "/api/question/create", bytes.NewReader(body), map[string]string{apiKeyHeader: testAPIKey})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Ids that would be shadowed by fixed API routes are refused.
	for _, id := range []string{"next", "schema", "gemini_trigger_power-rule"} {
		payload["legacy_id"] = id
		body, _ = json.Marshal(payload)
		resp = e.do(http.MethodPost, "/api/question/create", bytes.NewReader(body), map[string]string{apiKeyHeader: testAPIKey})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, id)
		_, err = e.store.GetQuestionByLegacyID(id)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}

	// Session auth works too; schema violations are rejected.
	e.login()
	bad := map[string]any{
		"subject_slug": "calculus",
		"concept_slug": "power-rule",
		"problem_text": "Pick",
		"data":         map[string]any{"type": "multiple_choice", "answer": 0},
	}
	resp = e.postJSON("/api/question/create", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	delete(payload, "legacy_id")
	payload["concept_slug"] = "missing"
	resp = e.postJSON("/api/question/create", payload)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuestionSchemaEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.get("/api/question/schema")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "POST", doc["method"])
	assert.Contains(t, doc, "data_schema")
}

func TestImportContent(t *testing.T) {
	e := newTestEnv(t, nil)
	file := `{"name":"Trigonometry","slug":"trigonometry","concepts":[{"name":"Ratios","slug":"ratios","questions":[
		{"legacy_id":"tr_1","problem_text":"sin 0","difficulty":"Easy","data":{"type":"numerical","answer":"0"}}]}]}`

	upload := func(data string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("content_file", "trig.json")
		require.NoError(t, err)
		_, _ = fw.Write([]byte(data))
		require.NoError(t, mw.Close())
		return e.do(http.MethodPost, "/api/content/import", &buf,
			map[string]string{"Content-Type": mw.FormDataContentType(), apiKeyHeader: testAPIKey})
	}

	resp := upload(file)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "imported", decode[map[string]any](t, resp)["status"])

	resp = upload(file)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unchanged", decode[map[string]any](t, resp)["status"])

	resp = upload(`{"name":"Bad","slug":"bad","concepts":[{"name":"x","slug":"x","questions":[
		{"legacy_id":"b1","problem_text":"p","data":{"type":"essay","answer":"1"}}]}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err := e.store.GetQuestionByLegacyID("tr_1")
	assert.NoError(t, err)
}

func TestFormAuthFlow(t *testing.T) {
	e := newTestEnv(t, nil)

	// No CSRF cookie yet.
	resp := e.do(http.MethodPost, "/login", strings.NewReader("email=x&password=y"),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Equal(t, http.StatusOK, e.get("/login").StatusCode)
	resp = e.postForm("/login", url.Values{"email": {testEmail}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.postForm("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = e.get("/profile")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), testEmail)

	resp = e.postForm("/change-password", url.Values{"current_password": {"nope"}, "new_password": {"another-pass"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.postForm("/change-password", url.Values{"current_password": {testPassword}, "new_password": {"another-pass"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.postForm("/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = e.get("/profile")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = e.postJSON("/login", map[string]string{"email": testEmail, "password": "another-pass"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	e := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, e.get("/register").StatusCode)

	resp := e.postForm("/register", url.Values{"email": {testEmail}, "password": {"long-enough"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.postForm("/register", url.Values{"email": {"new@example.com"}, "password": {"short"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.postForm("/register", url.Values{"email": {"new@example.com"}, "password": {strings.Repeat("p", 73)}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.postForm("/register", url.Values{"email": {"New@Example.com"}, "password": {"long-enough"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Registration logs the user in.
	got := e.submit("pr_easy", "3x^2")
	assert.True(t, got.Correct)
}

func TestPasswordReset(t *testing.T) {
	e := newTestEnv(t, nil)
	user, _ := e.store.GetUserByEmail(testEmail)

	require.Equal(t, http.StatusOK, e.get("/reset-password/request").StatusCode)
	resp := e.postForm("/reset-password/request", url.Values{"email": {"unknown@example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := e.store.CreatePasswordReset(user.ID)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, e.get("/reset-password/"+token).StatusCode)

	// A rejected password leaves the token usable.
	resp = e.postForm("/reset-password/"+token, url.Values{"password": {strings.Repeat("p", 73)}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.postForm("/reset-password/"+token, url.Values{"password": {"brand-new-pass"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// Tokens are single use.
	resp = e.postForm("/reset-password/"+token, url.Values{"password": {"brand-new-pass"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.postJSON("/login", map[string]string{"email": testEmail, "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPages(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Calculus")

	assert.Equal(t, http.StatusNotFound, e.get("/no-such-subject").StatusCode)
	assert.Equal(t, http.StatusNotFound, e.get("/api/nothing/here").StatusCode)

	resp = e.get("/static/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasePath(t *testing.T) {
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.ImportSubject(powerRuleSubject())
	require.NoError(t, err)

	h, err := New(s, tutor.NewGenerator(nil, cache.NewMemory(), cache.NewMemory()), model.ServerConfig{BasePath: "/math"})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/math", func(sub chi.Router) {
		sub.Use(h.BasePathMiddleware)
		h.Routes(sub)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/math/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/math/calculus"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/math/profile", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/math/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/math/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
