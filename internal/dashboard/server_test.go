package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fixharness/engine/internal/ledger"
	"github.com/fixharness/engine/internal/message"
	"github.com/fixharness/engine/internal/stub"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	reg := stub.New()
	_, err := reg.Register(stub.NewBuilder(func(*message.Message) bool { return true }).
		Respond(func(m *message.Message) *message.Message { return m.Clone() }).
		Label("always-match"))
	require.NoError(t, err)

	ldg := ledger.New(ledger.DefaultConfig)
	require.NoError(t, ldg.AddRecord(ledger.TradeRecord{Source: ledger.FIX, RequestKey: "REQ-1", Symbol: "AAPL", Price: 100}))

	var tokens []string
	if authToken != "" {
		tokens = []string{authToken}
	}
	return NewServer(Config{Port: 0, AuthTokens: tokens}, reg, ldg, testLogger())
}

func TestHandleHealth_AlwaysPublic(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleStubs_RequiresAuthWhenTokenConfigured(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/stubs", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stubs", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var views []stubView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "always-match", views[0].Label)
}

func TestHandleStubs_NoAuthWhenTokenEmpty(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/stubs", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReconcileOne(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/reconcile/REQ-1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var result ledger.ReconciliationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "REQ-1", result.CorrelationKey)
	assert.True(t, result.Passed)
}

func TestHandleReconcileAll(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/reconcile", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var results []ledger.ReconciliationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "REQ-1", results[0].CorrelationKey)
}

func TestAuthMiddleware_AcceptsAnyConfiguredToken(t *testing.T) {
	reg := stub.New()
	ldg := ledger.New(ledger.DefaultConfig)
	s := NewServer(Config{Port: 0, AuthTokens: []string{"runner-token", "oncall-token"}}, reg, ldg, testLogger())

	for _, tok := range []string{"runner-token", "oncall-token"} {
		req := httptest.NewRequest(http.MethodGet, "/stubs", nil)
		req.Header.Set("X-Auth-Token", tok)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "token %q should be accepted", tok)
	}

	req := httptest.NewRequest(http.MethodGet, "/stubs", nil)
	req.Header.Set("X-Auth-Token", "not-a-configured-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_AcceptsQueryParamAndCookie(t *testing.T) {
	s := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/stubs?token=secret", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stubs", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "secret"})
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
