//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"device-pairing-service/internal/domain"
	"device-pairing-service/internal/domain/model"
	ports "device-pairing-service/internal/domain/ports/usecase"
)

// --- mock pairing service ---

type mockPairing struct {
	issueRes   *ports.IssueResult
	issueErr   error
	claimErr   error
	pollRes    *ports.PollResult
	pollErr    error
	consumeRes *ports.ConsumeResult
	consumeErr error

	lastCode      string
	lastUserID    string
	lastCallerKey string
}

func (m *mockPairing) Issue(ctx context.Context, deviceIdentifier, deviceName string) (*ports.IssueResult, error) {
	return m.issueRes, m.issueErr
}

func (m *mockPairing) Claim(ctx context.Context, code, userID, callerKey string) error {
	m.lastCode, m.lastUserID, m.lastCallerKey = code, userID, callerKey
	return m.claimErr
}

func (m *mockPairing) Poll(ctx context.Context, code string) (*ports.PollResult, error) {
	m.lastCode = code
	return m.pollRes, m.pollErr
}

func (m *mockPairing) Consume(ctx context.Context, code, userID string) (*ports.ConsumeResult, error) {
	m.lastCode, m.lastUserID = code, userID
	return m.consumeRes, m.consumeErr
}

func (m *mockPairing) ExpireStale(ctx context.Context) (int, error) { return 0, nil }

func newTestServer(m *mockPairing) http.Handler {
	logger := zerolog.New(io.Discard)
	return NewServer(m, "secret-key", 5*time.Second, &logger).Router()
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIssueEndpoint(t *testing.T) {
	t.Parallel()

	m := &mockPairing{issueRes: &ports.IssueResult{Code: "AB12CD", ExpiresIn: 900}}
	h := newTestServer(m)

	rr := postJSON(t, h, "/api/v1/pairing", map[string]string{
		"device_identifier": "serial-001",
		"device_name":       "Kitchen Display",
	}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	var res struct {
		Code      string `json:"code"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Code != "AB12CD" || res.ExpiresIn != 900 {
		t.Fatalf("unexpected body: %+v", res)
	}
}

func TestIssueEndpoint_StoreUnavailable(t *testing.T) {
	t.Parallel()

	m := &mockPairing{issueErr: domain.ErrOperationFailed}
	rr := postJSON(t, newTestServer(m), "/api/v1/pairing", map[string]string{"device_identifier": "x"}, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestIssueEndpoint_Validation(t *testing.T) {
	t.Parallel()

	m := &mockPairing{issueErr: domain.ErrInvalidArgument}
	rr := postJSON(t, newTestServer(m), "/api/v1/pairing", map[string]string{}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestClaimEndpoint(t *testing.T) {
	t.Parallel()

	m := &mockPairing{}
	h := newTestServer(m)

	rr := postJSON(t, h, "/api/v1/pairing/claim", map[string]string{
		"code":    "AB12CD",
		"user_id": "u1",
	}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if m.lastCode != "AB12CD" || m.lastUserID != "u1" {
		t.Fatalf("service called with %q/%q", m.lastCode, m.lastUserID)
	}
	if m.lastCallerKey == "" {
		t.Fatal("caller key (remote IP) not forwarded for rate limiting")
	}
}

func TestClaimEndpoint_CollapsedFailure(t *testing.T) {
	t.Parallel()

	// Not-found, expired, and already-claimed all surface identically.
	m := &mockPairing{claimErr: domain.ErrNotClaimable}
	rr := postJSON(t, newTestServer(m), "/api/v1/pairing/claim", map[string]string{
		"code": "ZZZZZZ", "user_id": "u1",
	}, nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "activation not available" {
		t.Fatalf("failure body must stay generic, got %q", body["error"])
	}
}

func TestClaimEndpoint_RateLimited(t *testing.T) {
	t.Parallel()

	m := &mockPairing{claimErr: domain.ErrRateLimited}
	rr := postJSON(t, newTestServer(m), "/api/v1/pairing/claim", map[string]string{
		"code": "AB12CD", "user_id": "u1",
	}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
}

func TestPollEndpoint(t *testing.T) {
	t.Parallel()

	user := "u1"
	m := &mockPairing{pollRes: &ports.PollResult{Status: model.ActivationStatusClaimed, UserID: &user}}
	h := newTestServer(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pairing/AB12CD", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var res struct {
		Status string  `json:"status"`
		UserID *string `json:"user_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != "CLAIMED" {
		t.Fatalf("status = %q, want CLAIMED", res.Status)
	}
	if res.UserID == nil || *res.UserID != "u1" {
		t.Fatalf("user_id = %v, want u1", res.UserID)
	}
	if m.lastCode != "AB12CD" {
		t.Fatalf("poll called with %q", m.lastCode)
	}
}

func TestPollEndpoint_PendingOmitsUser(t *testing.T) {
	t.Parallel()

	m := &mockPairing{pollRes: &ports.PollResult{Status: model.ActivationStatusPending}}
	h := newTestServer(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pairing/AB12CD", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("user_id")) {
		t.Fatalf("pending poll must omit user_id: %s", rr.Body.String())
	}
}

func TestConsumeEndpoint_Auth(t *testing.T) {
	t.Parallel()

	m := &mockPairing{consumeRes: &ports.ConsumeResult{SessionToken: "jwt"}}
	h := newTestServer(m)
	body := map[string]string{"code": "AB12CD", "user_id": "u1"}

	// no header
	if rr := postJSON(t, h, "/api/v1/pairing/consume", body, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing auth: status = %d, want 401", rr.Code)
	}
	// wrong key
	if rr := postJSON(t, h, "/api/v1/pairing/consume", body, map[string]string{
		"Authorization": "Bearer wrong",
	}); rr.Code != http.StatusForbidden {
		t.Fatalf("wrong key: status = %d, want 403", rr.Code)
	}
	// correct key
	rr := postJSON(t, h, "/api/v1/pairing/consume", body, map[string]string{
		"Authorization": "Bearer secret-key",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var res struct {
		Success      bool   `json:"success"`
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !res.Success || res.SessionToken != "jwt" {
		t.Fatalf("unexpected body: %+v", res)
	}
}

func TestConsumeEndpoint_ReplayCollapsed(t *testing.T) {
	t.Parallel()

	m := &mockPairing{consumeErr: domain.ErrNotConsumable}
	rr := postJSON(t, newTestServer(m), "/api/v1/pairing/consume", map[string]string{
		"code": "AB12CD", "user_id": "u1",
	}, map[string]string{"Authorization": "Bearer secret-key"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestServer(&mockPairing{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
