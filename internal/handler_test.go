package form_mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactgate/contactgate/internal/store"
)

type testEnv struct {
	handler *Handler
	store   *store.MemoryStore
	now     time.Time
	sent    []*email.Email
	sendErr error
}

func testConfig() *Config {
	return &Config{
		SubmitPath:    "/submit-form",
		SiteName:      "Portfolio",
		To:            "owner@example.com",
		FromAddr:      "noreply@example.com",
		RateWindow:    60 * time.Second,
		AllowedHosts:  []string{"example.com", "www.example.com"},
		SpamKeywords:  defaultSpamKeywords,
		HoneypotField: "website",
		SessionCookie: "contact_session",
		SessionTTL:    time.Hour,
		MaxBodyKB:     4,
		AllowJSON:     true,
	}
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()

	te := &testEnv{
		store: store.NewMemoryStore(0),
		now:   time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	notifier := NotifierFunc(func(_ context.Context, e *email.Email) error {
		if te.sendErr != nil {
			return te.sendErr
		}
		te.sent = append(te.sent, e)
		return nil
	})
	te.handler = NewHandler(testConfig(), te.store, notifier, WithClock(func() time.Time { return te.now }))
	return te
}

func validForm() url.Values {
	return url.Values{
		"name":    {"Al"},
		"email":   {"a@b.com"},
		"subject": {"Hi!"},
		"message": {"1234567890"},
	}
}

func formRequest(form url.Values, referer string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/submit-form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "test-agent/1.0")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func (te *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	te.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandleSubmitAccepted(t *testing.T) {
	te := setupTestHandler(t)

	rec := te.do(formRequest(validForm(), "https://example.com/contact"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, msgAccepted, resp.Message)
	assert.Equal(t, "accepted", resp.Code)

	require.Len(t, te.sent, 1)
	e := te.sent[0]
	assert.Equal(t, "[Contact Form] Hi!", e.Subject)
	assert.Equal(t, []string{"owner@example.com"}, e.To)
	assert.Equal(t, []string{`"Al" <a@b.com>`}, e.ReplyTo)
	body := string(e.Text)
	assert.Contains(t, body, "Name: Al\n")
	assert.Contains(t, body, "Submitted: 2024-05-01 09:30:00\n")
	assert.Contains(t, body, "IP Address: 192.0.2.1\n")
	assert.Contains(t, body, "User Agent: test-agent/1.0\n")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	rateRec, err := te.store.Get(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	require.NotNil(t, rateRec)
	assert.Equal(t, te.now, rateRec.LastAcceptedAt)
}

func TestHandleSubmitMessageTooShort(t *testing.T) {
	te := setupTestHandler(t)
	form := validForm()
	form.Set("message", "short")

	rec := te.do(formRequest(form, ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Message is required and must be at least 10 characters.", resp.Message)
	assert.Empty(t, te.sent)
}

func TestHandleSubmitErrorsAccumulateInOrder(t *testing.T) {
	te := setupTestHandler(t)
	form := validForm()
	form.Set("name", "A")
	form.Set("message", "short")

	rec := te.do(formRequest(form, ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t,
		"Name is required and must be at least 2 characters. Message is required and must be at least 10 characters.",
		decodeResponse(t, rec).Message)
}

func TestHandleSubmitRateLimited(t *testing.T) {
	te := setupTestHandler(t)

	first := te.do(formRequest(validForm(), ""))
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()

	te.now = te.now.Add(10 * time.Second)
	second := te.do(formRequest(validForm(), "", cookies...))

	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "50", second.Header().Get("Retry-After"))
	resp := decodeResponse(t, second)
	assert.False(t, resp.Success)
	assert.Equal(t, 50, resp.RetryAfter)
	assert.Equal(t, "Please wait 50 seconds before submitting again.", resp.Message)
	assert.Len(t, te.sent, 1)

	te.now = te.now.Add(50 * time.Second)
	third := te.do(formRequest(validForm(), "", cookies...))
	assert.Equal(t, http.StatusOK, third.Code)
	assert.Len(t, te.sent, 2)
}

func TestHandleSubmitRateLimitIsPerSession(t *testing.T) {
	te := setupTestHandler(t)

	require.Equal(t, http.StatusOK, te.do(formRequest(validForm(), "")).Code)
	// no cookie: a fresh session
	assert.Equal(t, http.StatusOK, te.do(formRequest(validForm(), "")).Code)
}

func TestHandleSubmitRateLimitCheckedBeforeValidation(t *testing.T) {
	te := setupTestHandler(t)

	first := te.do(formRequest(validForm(), ""))
	require.Equal(t, http.StatusOK, first.Code)

	rec := te.do(formRequest(url.Values{}, "", first.Result().Cookies()...))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleSubmitSpamKeyword(t *testing.T) {
	te := setupTestHandler(t)
	form := validForm()
	form.Set("subject", "Visit my CASINO")

	rec := te.do(formRequest(form, ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, msgSpam, resp.Message)
	assert.Equal(t, "spam_detected", resp.Code)
	assert.NotContains(t, strings.ToLower(resp.Message), "casino")
	assert.Empty(t, te.sent)
}

func TestHandleSubmitHoneypot(t *testing.T) {
	te := setupTestHandler(t)
	form := validForm()
	form.Set("website", "http://spam.example")

	rec := te.do(formRequest(form, ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgSpam, decodeResponse(t, rec).Message)
	assert.Empty(t, te.sent)
}

func TestHandleSubmitInvalidOrigin(t *testing.T) {
	te := setupTestHandler(t)

	// form contents are irrelevant: the origin check runs first
	rec := te.do(formRequest(url.Values{"name": {"x"}}, "evil.example"))

	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, msgInvalidOrigin, resp.Message)
	assert.NotContains(t, resp.Message, "required")
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 0, te.store.Len())
}

func TestHandleSubmitOriginHeaderFallback(t *testing.T) {
	te := setupTestHandler(t)
	req := formRequest(validForm(), "")
	req.Header.Set("Origin", "https://attacker.example")

	assert.Equal(t, http.StatusForbidden, te.do(req).Code)
}

func TestHandleSubmitAllowedOrigins(t *testing.T) {
	for _, referer := range []string{
		"",
		"https://www.example.com/contact",
		"http://localhost:8080/",
		"http://127.0.0.1/index.html",
	} {
		t.Run(referer, func(t *testing.T) {
			te := setupTestHandler(t)
			assert.Equal(t, http.StatusOK, te.do(formRequest(validForm(), referer)).Code)
		})
	}
}

func TestHandleSubmitMethodNotAllowed(t *testing.T) {
	te := setupTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/submit-form", nil)

	rec := te.do(req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, msgInvalidMethod, resp.Message)
}

func TestHandleSubmitDeliveryFailedDoesNotCommit(t *testing.T) {
	te := setupTestHandler(t)
	te.sendErr = errors.New("dial tcp 10.0.0.1:587: connection refused")

	first := te.do(formRequest(validForm(), ""))

	require.Equal(t, http.StatusInternalServerError, first.Code)
	resp := decodeResponse(t, first)
	assert.Equal(t, msgDeliveryFailed, resp.Message)
	assert.NotContains(t, resp.Message, "connection refused")
	assert.Equal(t, 0, te.store.Len())

	// the same session may retry at once
	te.sendErr = nil
	second := te.do(formRequest(validForm(), "", first.Result().Cookies()...))
	assert.Equal(t, http.StatusOK, second.Code)
}

func TestHandleSubmitDeliveryFailedLogsCause(t *testing.T) {
	te := setupTestHandler(t)
	te.sendErr = errors.New("535 5.7.8 authentication failed")

	var buf bytes.Buffer
	req := formRequest(validForm(), "")
	req = req.WithContext(ContextWithLogger(req.Context(), slog.New(slog.NewTextHandler(&buf, nil))))

	rec := te.do(req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "535")
	assert.Contains(t, buf.String(), "send error")
	assert.Contains(t, buf.String(), "535 5.7.8 authentication failed")
}

func TestHandleSubmitRejectsAddressesSanitizingWouldChange(t *testing.T) {
	for _, addr := range []string{"josé@example.com", "user@bücher.de", `"john doe"@example.com`} {
		t.Run(addr, func(t *testing.T) {
			te := setupTestHandler(t)
			form := validForm()
			form.Set("email", addr)

			rec := te.do(formRequest(form, ""))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "A valid email address is required.", decodeResponse(t, rec).Message)
			assert.Empty(t, te.sent)
			assert.Equal(t, 0, te.store.Len())
		})
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) Get(context.Context, string) (*store.RateLimitRecord, error) {
	return nil, store.ErrStoreUnavailable
}

func (failingStore) Put(context.Context, store.RateLimitRecord) error {
	return store.ErrStoreUnavailable
}

func (failingStore) Ping(context.Context) error {
	return store.ErrStoreUnavailable
}

func TestHandleSubmitStoreFailureFailsOpen(t *testing.T) {
	var sent int
	h := NewHandler(testConfig(), failingStore{}, NotifierFunc(func(context.Context, *email.Email) error {
		sent++
		return nil
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, formRequest(validForm(), ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sent)
}

func TestHandleSubmitJSONBody(t *testing.T) {
	te := setupTestHandler(t)
	body := `{"name":"Alice","email":"alice@example.com","subject":"Hello","message":"Hello there, how are you?"}`
	req := httptest.NewRequest(http.MethodPost, "/submit-form", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := te.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, te.sent, 1)
	assert.Contains(t, string(te.sent[0].Text), "Hello there, how are you?")
}

func TestHandleSubmitJSONDisabled(t *testing.T) {
	te := setupTestHandler(t)
	te.handler.cfg.AllowJSON = false
	req := httptest.NewRequest(http.MethodPost, "/submit-form", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rec := te.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidForm, decodeResponse(t, rec).Message)
}

func TestHandleSubmitMultipartBody(t *testing.T) {
	te := setupTestHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range validForm() {
		require.NoError(t, mw.WriteField(k, v[0]))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/submit-form", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := te.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSubmitBodyTooLarge(t *testing.T) {
	te := setupTestHandler(t)
	form := validForm()
	form.Set("message", strings.Repeat("x", 8*1024))

	rec := te.do(formRequest(form, ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidForm, decodeResponse(t, rec).Message)
	assert.Empty(t, te.sent)
}

func TestHandleSubmitReusesSessionCookie(t *testing.T) {
	te := setupTestHandler(t)
	cookie := &http.Cookie{Name: "contact_session", Value: "6f1c2a8e-3b7d-4c9a-9e2f-0a1b2c3d4e5f"}

	rec := te.do(formRequest(validForm(), "", cookie))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	rateRec, err := te.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.NotNil(t, rateRec)
}

func TestHandleSubmitReplacesMalformedSessionCookie(t *testing.T) {
	te := setupTestHandler(t)
	cookie := &http.Cookie{Name: "contact_session", Value: "../../etc"}

	rec := te.do(formRequest(validForm(), "", cookie))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, cookie.Value, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	te := setupTestHandler(t)
	rec := httptest.NewRecorder()
	te.handler.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewHandler(testConfig(), failingStore{}, NotifierFunc(func(context.Context, *email.Email) error { return nil }))
	rec = httptest.NewRecorder()
	h.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
