package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"signup-portal/internal/csrf"
	"signup-portal/internal/repository"
	"signup-portal/internal/repository/migrations"
	"signup-portal/internal/repository/sqlite"
	"signup-portal/internal/service"
	"signup-portal/internal/session"
	"signup-portal/web"
)

var tokenPattern = regexp.MustCompile(`data-csrf-token="([0-9a-f]{64})"`)

type testApp struct {
	router *gin.Engine
	db     *sql.DB
	hook   *logtest.Hook
	cookie *http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	return newTestAppWith(t, 2*time.Second, nil)
}

// newTestAppWith lets a test bound the request timeout and decorate the account store.
func newTestAppWith(t *testing.T, timeout time.Duration, wrap func(repository.AccountRepository) repository.AccountRepository) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Up(context.Background(), db, "sqlite")
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	tmpl, err := web.Templates()
	require.NoError(t, err)

	store := session.NewMemoryStore(time.Hour)
	accounts := sqlite.NewAccountRepository(db)
	if wrap != nil {
		accounts = wrap(accounts)
	}
	handler := NewHandler(HandlerDeps{
		Registrations:  service.NewRegistrationService(accounts, service.BcryptHasher{Cost: bcrypt.MinCost}),
		Accounts:       accounts,
		Sessions:       session.NewManager(store, session.ManagerConfig{TTL: time.Hour, Logger: logger}),
		Issuer:         csrf.NewIssuer(store, nil),
		Templates:      tmpl,
		Static:         web.Static(),
		RequestTimeout: timeout,
		Logger:         logger,
	})

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testApp{router: router, db: db, hook: hook}
}

// stallingAccounts hands out connections whose lookup waits for the request deadline.
type stallingAccounts struct {
	repository.AccountRepository
}

func (s stallingAccounts) Acquire(ctx context.Context) (repository.AccountConn, error) {
	conn, err := s.AccountRepository.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return stallingConn{AccountConn: conn}, nil
}

type stallingConn struct {
	repository.AccountConn
}

func (stallingConn) ExistsByUsernameOrEmail(ctx context.Context, _, _ string) (bool, error) {
	<-ctx.Done()
	return false, fmt.Errorf("query existing account: %w", ctx.Err())
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			a.cookie = c
		}
	}
	return rec
}

// loadPage renders the form and returns the embedded token.
func (a *testApp) loadPage(t *testing.T) string {
	t.Helper()
	rec := a.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	m := tokenPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2, "token not embedded in page")
	return m[1]
}

func (a *testApp) post(fields url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/backend", strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) countAccounts(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, a.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) RegisterResponse {
	t.Helper()
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var resp RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func bobForm(token string) url.Values {
	return url.Values{
		"csrf_token": {token},
		"username":   {"bob"},
		"name":       {"Bob"},
		"last_name":  {"Lee"},
		"email":      {"bob@example.com"},
		"password":   {"abc12345"},
	}
}

func TestRenderPage_TokenStableForSession(t *testing.T) {
	app := newTestApp(t)

	first := app.loadPage(t)
	require.NotNil(t, app.cookie)
	second := app.loadPage(t)
	assert.Equal(t, first, second)

	other := newTestApp(t)
	assert.NotEqual(t, first, other.loadPage(t))
}

func TestRenderPage_Headers(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestSubmit_RegistersThenRejectsDuplicate(t *testing.T) {
	app := newTestApp(t)
	token := app.loadPage(t)

	rec := app.post(bobForm(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"success_message":"Successful registration, now you can log in."}`, rec.Body.String())

	var hash string
	require.NoError(t, app.db.QueryRow(`SELECT password FROM users WHERE email = ?`, "bob@example.com").Scan(&hash))
	assert.NotEqual(t, "abc12345", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("abc12345")))
	assert.Equal(t, 1, app.countAccounts(t))

	rec = app.post(bobForm(token))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error_message":"Username or email already in use."}`, rec.Body.String())
	assert.Equal(t, 1, app.countAccounts(t))
}

func TestSubmit_UsernameTakenWithNewEmail(t *testing.T) {
	app := newTestApp(t)
	token := app.loadPage(t)

	alice := bobForm(token)
	alice.Set("username", "alice")
	alice.Set("email", "alice@example.com")
	require.Equal(t, http.StatusOK, app.post(alice).Code)

	again := bobForm(token)
	again.Set("username", "alice")
	again.Set("email", "unused@example.com")
	resp := decode(t, app.post(again))

	assert.Equal(t, service.MsgConflict, resp.ErrorMessage)
	assert.Equal(t, 1, app.countAccounts(t))
}

func TestSubmit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(url.Values)
		status  int
		message string
	}{
		{"missing_username", func(v url.Values) { v.Del("username") }, http.StatusBadRequest, service.MsgIncomplete},
		{"empty_last_name", func(v url.Values) { v.Set("last_name", "") }, http.StatusBadRequest, service.MsgIncomplete},
		{"absent_token", func(v url.Values) { v.Del("csrf_token") }, http.StatusForbidden, service.MsgInvalidCSRF},
		{"wrong_token", func(v url.Values) { v.Set("csrf_token", strings.Repeat("0", 64)) }, http.StatusForbidden, service.MsgInvalidCSRF},
		{"short_password", func(v url.Values) { v.Set("password", "abc1234") }, http.StatusBadRequest, service.MsgWeakPassword},
		{"no_digit", func(v url.Values) { v.Set("password", "abcdefghij") }, http.StatusBadRequest, service.MsgWeakPassword},
		{"no_letter", func(v url.Values) { v.Set("password", "1234567890") }, http.StatusBadRequest, service.MsgWeakPassword},
		{"bad_email", func(v url.Values) { v.Set("email", "bob-at-example") }, http.StatusBadRequest, service.MsgInvalidEmail},
		{"escaped_name_too_long", func(v url.Values) { v.Set("name", strings.Repeat("&", 52)) }, http.StatusBadRequest, service.MsgFieldTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			form := bobForm(app.loadPage(t))
			tt.mutate(form)

			for i := 0; i < 2; i++ {
				rec := app.post(form)
				assert.Equal(t, tt.status, rec.Code)
				assert.Equal(t, RegisterResponse{ErrorMessage: tt.message}, decode(t, rec))
			}
			assert.Equal(t, 0, app.countAccounts(t))
		})
	}
}

func TestSubmit_CSRFMismatchIsLogged(t *testing.T) {
	app := newTestApp(t)
	form := bobForm(app.loadPage(t))
	form.Set("csrf_token", "forged")
	app.hook.Reset()

	app.post(form)

	var warned *logrus.Entry
	for _, e := range app.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, "csrf token mismatch on registration", warned.Message)
	assert.Equal(t, "invalid_csrf", warned.Data["outcome"])
	assert.Equal(t, true, warned.Data["has_token"])
}

func TestSubmit_WithoutPageLoadHasNoToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.post(bobForm(strings.Repeat("a", 64)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, app.countAccounts(t))
}

func TestSubmit_MultipartBody(t *testing.T) {
	app := newTestApp(t)
	token := app.loadPage(t)

	var body strings.Builder
	w := multipart.NewWriter(&body)
	for k, v := range bobForm(token) {
		require.NoError(t, w.WriteField(k, v[0]))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/backend", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := app.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestSubmit_NonPostIsIdle(t *testing.T) {
	app := newTestApp(t)
	app.loadPage(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := app.do(httptest.NewRequest(method, "/backend?username=bob", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.Empty(t, rec.Body.String(), method)
	}
	assert.Equal(t, 0, app.countAccounts(t))
}

func TestSubmit_StoreFailureIsGeneric(t *testing.T) {
	app := newTestApp(t)
	token := app.loadPage(t)
	_, err := app.db.Exec(`DROP TABLE users`)
	require.NoError(t, err)

	rec := app.post(bobForm(token))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error_message":"Error attempting to register user. Please try again later."}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "users")

	var logged bool
	for _, e := range app.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "registration failed" {
			logged = e.Data[logrus.ErrorKey] != nil
		}
	}
	assert.True(t, logged)
}

func TestSubmit_RequestTimeoutIsGenericFailure(t *testing.T) {
	app := newTestAppWith(t, 50*time.Millisecond, func(r repository.AccountRepository) repository.AccountRepository {
		return stallingAccounts{AccountRepository: r}
	})
	token := app.loadPage(t)

	started := time.Now()
	rec := app.post(bobForm(token))

	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, RegisterResponse{ErrorMessage: service.MsgFailure}, decode(t, rec))
	assert.Equal(t, 0, app.countAccounts(t))

	var cause error
	for _, e := range app.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "registration failed" {
			cause, _ = e.Data[logrus.ErrorKey].(error)
		}
	}
	require.Error(t, cause)
	assert.True(t, errors.Is(cause, context.DeadlineExceeded))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.db.Close())
	rec = app.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStaticAndMetrics(t *testing.T) {
	app := newTestApp(t)
	token := app.loadPage(t)
	app.post(bobForm(token))

	rec := app.do(httptest.NewRequest(http.MethodGet, "/static/register.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fetch('backend'")

	rec = app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `registration_attempts_total{outcome="success"}`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(service.KindSuccess))
	assert.Equal(t, http.StatusForbidden, statusFor(service.KindInvalidCSRF))
	assert.Equal(t, http.StatusConflict, statusFor(service.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusFor(service.KindFailure))
}
