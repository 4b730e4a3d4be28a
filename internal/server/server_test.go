package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/auth"
	"github.com/joseph-ayodele/medscan/internal/conversation"
	"github.com/joseph-ayodele/medscan/internal/export"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/llm"
	"github.com/joseph-ayodele/medscan/internal/ocr"
	"github.com/joseph-ayodele/medscan/internal/pipeline"
	"github.com/joseph-ayodele/medscan/internal/repository/repotest"
	"github.com/joseph-ayodele/medscan/internal/server"
	"github.com/joseph-ayodele/medscan/internal/services/user"
)

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string, constants.MediaKind) (ocr.Result, error) {
	return ocr.Result{Text: "Glucose 180 mg/dL (70 - 99)", Provenance: constants.ProvenanceOCR, Pages: 1}, nil
}

type stubModel struct{}

func (stubModel) Complete(context.Context, []llm.Message) (string, error) {
	return "Your glucose is high.", nil
}

type testEnv struct {
	handler   http.Handler
	uploadDir string
}

func newEnv(t *testing.T, opts ...func(*server.Options)) *testEnv {
	t.Helper()
	client := repotest.NewClient(t)
	log := repotest.Logger()

	rec := ledger.New(client, log)
	users := user.NewService(client.Users(), client.Activities(), rec, log)
	store := conversation.NewMemoryStore(llm.ChatPreamble)
	proc := pipeline.NewProcessor(pipeline.Config{}, stubExtractor{}, client.Users(), stubModel{}, rec, store, log)
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	dir := t.TempDir()
	o := server.Options{
		CORSOrigins: []string{"http://localhost:5173"},
		UploadDir:   dir,
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv := server.New(o, users, proc, export.NewService(users, log), issuer, client, log)
	return &testEnv{handler: srv.Router(), uploadDir: dir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any, token string) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func uploadRequest(t *testing.T, path, filename, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake document"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("language", "Spanish"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *testEnv) register(t *testing.T) string {
	t.Helper()
	rec := e.do(t, jsonRequest(http.MethodPost, "/register", map[string]any{
		"email": "ada@example.com", "name": "Ada", "dob": "1990-05-01", "healthRecords": "asthma",
	}, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newEnv(t)
	env.register(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/register", map[string]any{
		"email": "ada@example.com", "name": "Ada", "dob": "1990-05-01", "healthRecords": "asthma",
	}, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, records := range []any{"", "   ", []string{}} {
		rec = env.do(t, jsonRequest(http.MethodPost, "/register", map[string]any{
			"email": "cy@example.com", "name": "Cy", "dob": "1990-05-01", "healthRecords": records,
		}, ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "healthRecords=%v", records)
		assert.Equal(t, "INVALID_ARGUMENT", decode(t, rec)["code"])
	}

	rec = env.do(t, jsonRequest(http.MethodPost, "/register", map[string]any{
		"email": "bo@example.com", "name": "Bo", "dob": "yesterday", "healthRecords": "none",
	}, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode(t, rec)["code"])

	rec = env.do(t, jsonRequest(http.MethodPost, "/login", map[string]any{"email": "ada@example.com"}, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(cookie)
	rec = env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/login", map[string]any{"email": "ghost@example.com"}, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/logout", nil, ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{"/api/user", "/api/user/activities"} {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := env.do(t, jsonRequest(http.MethodPost, "/chatbot", map[string]any{"input": "hi"}, "bogus"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLabReportUpload(t *testing.T) {
	env := newEnv(t)
	token := env.register(t)

	rec := env.do(t, uploadRequest(t, "/labreport", "my report.pdf", token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Your glucose is high.", body["response"])
	assert.Equal(t, "ocr-fallback", body["provenance"])
	assert.Equal(t, "Processed with ocr-fallback", body["message"])
	assert.Regexp(t, `^\d+\.\d{2}s$`, body["processingTime"])
	counters := body["counters"].(map[string]any)
	assert.EqualValues(t, 1, counters["reportsCount"])

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload must be deleted")

	rec = env.do(t, jsonRequest(http.MethodGet, "/api/user", nil, token))
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode(t, rec)
	assert.EqualValues(t, 1, profile["reportsCount"])
	acts := profile["activities"].([]any)
	require.Len(t, acts, 1)
	assert.Equal(t, constants.LabelReport, acts[0].(map[string]any)["action"])
}

func TestUploadRejections(t *testing.T) {
	env := newEnv(t)
	token := env.register(t)

	rec := env.do(t, uploadRequest(t, "/labreport", "notes.txt", token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, uploadRequest(t, "/medicine", "box.pdf", token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/labreport", map[string]any{}, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file uploaded", decode(t, rec)["message"])

	rec = env.do(t, jsonRequest(http.MethodGet, "/api/user/activities", nil, token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["activities"])
}

func TestChatAndActivityRoutes(t *testing.T) {
	env := newEnv(t)
	token := env.register(t)

	rec := env.do(t, jsonRequest(http.MethodPost, "/chatbot", map[string]any{"input": "Is 180 high?"}, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["counters"].(map[string]any)["queriesCount"])

	rec = env.do(t, jsonRequest(http.MethodPost, "/chatbot", map[string]any{"input": ""}, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/clear-chat", nil, token))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/user/activity", map[string]any{"type": "medicineScan"}, token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["counters"].(map[string]any)["scansCount"])

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/user/activity", map[string]any{"type": "jog"}, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodGet, "/api/user/activities/export", nil, token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "medscan-activities.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = env.do(t, jsonRequest(http.MethodGet, "/api/user/activities/export?from=03-2025", nil, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSessionCookieSecure(t *testing.T) {
	for _, secure := range []bool{false, true} {
		env := newEnv(t, func(o *server.Options) { o.CookieSecure = secure })
		env.register(t)

		rec := env.do(t, jsonRequest(http.MethodPost, "/login", map[string]any{"email": "ada@example.com"}, ""))
		require.Equal(t, http.StatusOK, rec.Code)
		var found bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.CookieName {
				found = true
				assert.Equal(t, secure, c.Secure)
				assert.True(t, c.HttpOnly)
			}
		}
		assert.True(t, found)
	}
}
