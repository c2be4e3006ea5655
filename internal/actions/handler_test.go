package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/foamcrew/foamcrew/internal/accounts"
	"github.com/foamcrew/foamcrew/internal/documents"
	"github.com/foamcrew/foamcrew/internal/heartbeat"
	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/snapshot"
)

type fakeBackend struct {
	lockTenants []string
	lockWaits   []time.Duration
	busy        bool

	lastAction string
	lastSender messages.Sender
	lastSince  time.Time
	syncedUp   *snapshot.ClientState
}

func (f *fakeBackend) WithLock(ctx context.Context, tenantID string, wait time.Duration, fn func(context.Context) error) error {
	f.lockTenants = append(f.lockTenants, tenantID)
	f.lockWaits = append(f.lockWaits, wait)
	if f.busy {
		return shared.ErrServerBusy
	}
	return fn(ctx)
}

func (f *fakeBackend) Signup(_ context.Context, username, _, companyName, _ string) (accounts.Session, error) {
	return accounts.Session{Username: username, CompanyName: companyName, Token: "fresh"}, nil
}

func (f *fakeBackend) Login(_ context.Context, username, password string) (accounts.Session, error) {
	if password != "hunter22222" {
		return accounts.Session{}, shared.ErrInvalidCredentials
	}
	return accounts.Session{Username: username, TenantID: "t1", Role: accounts.RoleAdmin, Token: "tok"}, nil
}

func (f *fakeBackend) CrewLogin(_ context.Context, username, _ string) (accounts.Session, error) {
	return accounts.Session{Username: username, Role: accounts.RoleCrew, Token: "tok"}, nil
}

func (f *fakeBackend) UpdatePassword(context.Context, string, string, string) error {
	f.lastAction = "update_password"
	return nil
}

func (f *fakeBackend) SubmitTrial(context.Context, accounts.TrialLead) error { return nil }

func (f *fakeBackend) Verify(_ context.Context, token string) (shared.Actor, error) {
	switch token {
	case "admin-token":
		return shared.Actor{TenantID: "t1", Username: "boss", Role: accounts.RoleAdmin}, nil
	case "crew-token":
		return shared.Actor{TenantID: "t1", Username: "boss", Role: accounts.RoleCrew}, nil
	}
	return shared.Actor{}, shared.ErrUnauthorized
}

func (f *fakeBackend) SyncDown(context.Context, string) (snapshot.FullState, error) {
	return snapshot.FullState{"serverTime": "now"}, nil
}

func (f *fakeBackend) SyncUp(_ context.Context, _ string, state snapshot.ClientState) error {
	f.syncedUp = &state
	return nil
}

func (f *fakeBackend) Delta(_ context.Context, _ string, since time.Time) (heartbeat.Delta, error) {
	f.lastSince = since
	return heartbeat.Delta{ServerTime: "now"}, nil
}

func (f *fakeBackend) Send(_ context.Context, _, estimateID, content string, sender messages.Sender) (messages.Message, error) {
	f.lastSender = sender
	return messages.Message{EstimateID: estimateID, Content: content, Sender: sender}, nil
}

func (f *fakeBackend) StartJob(_ context.Context, _, id string) (jobrecord.Record, error) {
	f.lastAction = "start"
	return jobrecord.Record{ID: id, ExecutionStatus: jobrecord.ExecutionInProgress}, nil
}

func (f *fakeBackend) CompleteJob(_ context.Context, _, id string, _ jobrecord.Actuals) (jobrecord.Record, error) {
	return jobrecord.Record{ID: id, ExecutionStatus: jobrecord.ExecutionCompleted}, nil
}

func (f *fakeBackend) MarkJobPaid(_ context.Context, _, id string) (jobrecord.Record, error) {
	return jobrecord.Record{ID: id, Status: jobrecord.StatusPaid}, nil
}

func (f *fakeBackend) DeleteEstimate(context.Context, string, string) error { return nil }

func (f *fakeBackend) LogTime(context.Context, string, ledger.TimeEntry) error { return nil }

func (f *fakeBackend) CreateWorkOrder(_ context.Context, tenantID, id, _ string) (documents.WorkOrderResult, error) {
	return documents.WorkOrderResult{URL: fmt.Sprintf("/media/%s/workorder-%s.pdf", tenantID, id)}, nil
}

func (f *fakeBackend) SavePDF(context.Context, string, string, string, string) (string, error) {
	return "/media/t1/invoice.pdf", nil
}

func (f *fakeBackend) UploadImage(context.Context, string, string, string, string) (string, error) {
	return "/media/t1/photo.jpg", nil
}

func testRouter(t *testing.T) (*chi.Mux, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	h := NewHandler(slog.New(slog.DiscardHandler), backend, nil, backend, backend, backend, backend, backend, backend)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r, backend
}

func post(t *testing.T, r http.Handler, path, token, action string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]any{"action": action}
	if payload != nil {
		body["payload"] = payload
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var env struct {
		Status  string         `json:"status"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if env.Status == "error" {
		return env.Status, map[string]any{"message": env.Message}
	}
	return env.Status, env.Data
}

func TestEveryActionHasATier(t *testing.T) {
	all := []string{
		ActionLogin, ActionSignup, ActionCrewLogin, ActionSubmitTrial,
		ActionUpdatePassword, ActionSyncDown, ActionHeartbeat,
		ActionSyncUp, ActionStartJob, ActionCompleteJob, ActionMarkJobPaid,
		ActionDeleteEstimate, ActionSendMessage, ActionLogTime,
		ActionCreateWorkOrder, ActionSavePDF, ActionUploadImage,
	}
	require.Len(t, actionTiers, len(all))
	counts := map[Tier]int{}
	for _, action := range all {
		tier, ok := TierOf(action)
		require.True(t, ok, action)
		counts[tier]++
	}
	require.Equal(t, 7, counts[TierRead])
	require.Equal(t, 7, counts[TierTransactional])
	require.Equal(t, 3, counts[TierHeavy])
}

func TestLoginSucceedsWithoutToken(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/auth", "", "LOGIN", map[string]string{"username": "boss", "password": "hunter22222"})
	require.Equal(t, http.StatusOK, rec.Code)
	status, data := decodeEnvelope(t, rec)
	require.Equal(t, "success", status)
	require.Equal(t, "tok", data["token"])
}

func TestBadCredentialsReturn401(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/auth", "", "LOGIN", map[string]string{"username": "boss", "password": "wrongwrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownActionRejected(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/ops", "admin-token", "DROP_TABLES", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionOnWrongEndpointRejected(t *testing.T) {
	r, _ := testRouter(t)
	// SYNC_UP is transactional and only served by /ops.
	rec := post(t, r, "/api/media", "admin-token", "SYNC_UP", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedActionNeedsToken(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/ops", "", "SYNC_DOWN", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, r, "/api/ops", "garbage", "SYNC_DOWN", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCrewCannotRunAdminActions(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/ops", "crew-token", "MARK_JOB_PAID", map[string]string{"estimateId": "e1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, backend.lockTenants, "forbidden actions must not touch the lock")
}

func TestTransactionalActionHoldsStoreLock(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/ops", "crew-token", "START_JOB", map[string]string{"estimateId": "e1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"t1"}, backend.lockTenants)
	require.Equal(t, []time.Duration{txLockWait}, backend.lockWaits)
}

func TestBusyLockReturns503(t *testing.T) {
	r, backend := testRouter(t)
	backend.busy = true
	rec := post(t, r, "/api/ops", "admin-token", "SYNC_UP", map[string]any{})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSignupTakesBestEffortLock(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/auth", "", "SIGNUP", map[string]string{
		"username": "NewCo", "password": "longenough", "companyName": "NewCo Foam",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"signup:newco"}, backend.lockTenants)
	require.Equal(t, []time.Duration{authLockWait}, backend.lockWaits)
}

func TestSyncUpReturnsMergedState(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/ops", "admin-token", "SYNC_UP", map[string]any{
		"savedEstimates": []map[string]any{{"id": "e1", "status": "Draft"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	status, data := decodeEnvelope(t, rec)
	require.Equal(t, "success", status)
	require.Equal(t, "now", data["serverTime"])
	require.NotNil(t, backend.syncedUp)
	require.Len(t, backend.syncedUp.SavedEstimates, 1)
}

func TestHeartbeatSinceMillis(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/ops", "crew-token", "HEARTBEAT", map[string]any{"since": int64(1767225600000)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.UnixMilli(1767225600000), backend.lastSince)
	require.Empty(t, backend.lockTenants, "heartbeat is read tier")
}

func TestSendMessageSenderFollowsRole(t *testing.T) {
	r, backend := testRouter(t)
	payload := map[string]string{"estimateId": "e1", "content": "on site"}

	rec := post(t, r, "/api/ops", "crew-token", "SEND_MESSAGE", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, messages.SenderCrew, backend.lastSender)

	rec = post(t, r, "/api/ops", "admin-token", "SEND_MESSAGE", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, messages.SenderAdmin, backend.lastSender)
}

func TestValidationFailureReturns400(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/ops", "admin-token", "START_JOB", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, r, "/api/auth", "", "SIGNUP", map[string]string{
		"username": "ab", "password": "short", "companyName": "",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWorkOrderOnMediaEndpoint(t *testing.T) {
	r, backend := testRouter(t)
	rec := post(t, r, "/api/media", "admin-token", "CREATE_WORK_ORDER", map[string]string{"estimateId": "e1"})
	require.Equal(t, http.StatusOK, rec.Code)
	status, data := decodeEnvelope(t, rec)
	require.Equal(t, "success", status)
	require.Equal(t, "/media/t1/workorder-e1.pdf", data["url"])
	require.Empty(t, backend.lockTenants, "heavy tier never takes the store lock")
}

func TestActionNameIsCaseInsensitive(t *testing.T) {
	r, _ := testRouter(t)
	rec := post(t, r, "/api/ops", "crew-token", "sync_down", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
