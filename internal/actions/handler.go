package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foamcrew/foamcrew/internal/accounts"
	"github.com/foamcrew/foamcrew/internal/documents"
	"github.com/foamcrew/foamcrew/internal/heartbeat"
	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/ledger"
	"github.com/foamcrew/foamcrew/internal/messages"
	"github.com/foamcrew/foamcrew/internal/platform/httpx"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/snapshot"
)

const (
	// authLockWait bounds the best-effort lock around account writes.
	authLockWait = 10 * time.Second
	// txLockWait bounds how long a transactional action queues for the
	// tenant store lock before giving up with ErrServerBusy.
	txLockWait = 30 * time.Second
)

// Authenticator is the account service surface the API needs.
type Authenticator interface {
	Signup(ctx context.Context, username, password, companyName, email string) (accounts.Session, error)
	Login(ctx context.Context, username, password string) (accounts.Session, error)
	CrewLogin(ctx context.Context, username, pin string) (accounts.Session, error)
	UpdatePassword(ctx context.Context, username, currentPassword, newPassword string) error
	SubmitTrial(ctx context.Context, lead accounts.TrialLead) error
	Verify(ctx context.Context, token string) (shared.Actor, error)
}

// Syncer handles the snapshot exchange.
type Syncer interface {
	SyncDown(ctx context.Context, tenantID string) (snapshot.FullState, error)
	SyncUp(ctx context.Context, tenantID string, state snapshot.ClientState) error
}

// Heartbeater computes incremental deltas.
type Heartbeater interface {
	Delta(ctx context.Context, tenantID string, since time.Time) (heartbeat.Delta, error)
}

// Messenger posts chat messages.
type Messenger interface {
	Send(ctx context.Context, tenantID, estimateID, content string, sender messages.Sender) (messages.Message, error)
}

// JobOps runs the single-record lifecycle actions.
type JobOps interface {
	StartJob(ctx context.Context, tenantID, estimateID string) (jobrecord.Record, error)
	CompleteJob(ctx context.Context, tenantID, estimateID string, actuals jobrecord.Actuals) (jobrecord.Record, error)
	MarkJobPaid(ctx context.Context, tenantID, estimateID string) (jobrecord.Record, error)
	DeleteEstimate(ctx context.Context, tenantID, estimateID string) error
	LogTime(ctx context.Context, tenantID string, entry ledger.TimeEntry) error
}

// DocumentOps runs the heavy-tier media actions.
type DocumentOps interface {
	CreateWorkOrder(ctx context.Context, tenantID, estimateID, crewNotes string) (documents.WorkOrderResult, error)
	SavePDF(ctx context.Context, tenantID, estimateID, fileName, dataURL string) (string, error)
	UploadImage(ctx context.Context, tenantID, estimateID, fileName, dataURL string) (string, error)
}

// Locker serialises transactional actions per tenant.
type Locker interface {
	WithLock(ctx context.Context, tenantID string, wait time.Duration, fn func(context.Context) error) error
}

// Metrics counts processed actions; nil disables counting.
type Metrics interface {
	ObserveAction(action, outcome string)
}

// Handler dispatches the action API.
type Handler struct {
	logger    *slog.Logger
	validate  *validator.Validate
	locker    Locker
	metrics   Metrics
	auth      Authenticator
	sync      Syncer
	heartbeat Heartbeater
	messages  Messenger
	jobs      JobOps
	docs      DocumentOps
}

func NewHandler(logger *slog.Logger, locker Locker, metrics Metrics, auth Authenticator, sync Syncer, hb Heartbeater, msg Messenger, jobs JobOps, docs DocumentOps) *Handler {
	return &Handler{
		logger:    logger,
		validate:  validator.New(),
		locker:    locker,
		metrics:   metrics,
		auth:      auth,
		sync:      sync,
		heartbeat: hb,
		messages:  msg,
		jobs:      jobs,
		docs:      docs,
	}
}

// MountRoutes registers the three action endpoints. The split mirrors
// what each endpoint is allowed to do, so a leaked media URL never
// reaches the sync surface.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth", h.endpoint(TierRead))
	r.Post("/ops", h.endpoint(TierRead, TierTransactional))
	r.Post("/media", h.endpoint(TierHeavy))
}

// endpoint builds a handler accepting only actions of the given tiers.
func (h *Handler) endpoint(tiers ...Tier) http.HandlerFunc {
	allowed := map[Tier]bool{}
	for _, t := range tiers {
		allowed[t] = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h.dispatch(w, r, allowed)
	}
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, allowed map[Tier]bool) {
	var env Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	action := strings.ToUpper(strings.TrimSpace(env.Action))
	tier, known := TierOf(action)
	if !known || !allowed[tier] {
		httpx.Error(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", env.Action))
		return
	}

	ctx := r.Context()
	var actor shared.Actor
	if !public[action] {
		var err error
		actor, err = h.auth.Verify(ctx, bearerToken(r))
		if err != nil {
			h.observe(action, "unauthorized")
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		if adminOnly[action] && actor.Role != accounts.RoleAdmin {
			h.observe(action, "forbidden")
			httpx.Error(w, http.StatusForbidden, "admin role required")
			return
		}
	}

	var data any
	exec := func(ctx context.Context) error {
		var err error
		data, err = h.execute(ctx, action, actor, env.Payload)
		return err
	}

	var err error
	switch {
	case tier == TierTransactional:
		err = h.locker.WithLock(ctx, actor.TenantID, txLockWait, exec)
	case action == ActionSignup:
		// Account writes race only with themselves; a short best-effort
		// lock on the username is enough.
		err = h.locker.WithLock(ctx, "signup:"+strings.ToLower(env.payloadUsername()), authLockWait, exec)
	case action == ActionUpdatePassword:
		err = h.locker.WithLock(ctx, actor.TenantID, authLockWait, exec)
	default:
		err = exec(ctx)
	}
	if err != nil {
		h.observe(action, "error")
		h.logger.Warn("action failed", "action", action, "tenant_id", actor.TenantID, "error", err)
		httpx.RespondError(w, err)
		return
	}
	h.observe(action, "success")
	httpx.Success(w, data)
}

func (h *Handler) execute(ctx context.Context, action string, actor shared.Actor, raw json.RawMessage) (any, error) {
	switch action {
	case ActionLogin:
		var p loginPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.auth.Login(ctx, p.Username, p.Password)

	case ActionSignup:
		var p signupPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.auth.Signup(ctx, p.Username, p.Password, p.CompanyName, p.Email)

	case ActionCrewLogin:
		var p crewLoginPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.auth.CrewLogin(ctx, p.Username, p.Pin)

	case ActionSubmitTrial:
		var p trialPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return nil, h.auth.SubmitTrial(ctx, accounts.TrialLead{Name: p.Name, Email: p.Email, Phone: p.Phone})

	case ActionUpdatePassword:
		var p updatePasswordPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return nil, h.auth.UpdatePassword(ctx, actor.Username, p.CurrentPassword, p.NewPassword)

	case ActionSyncDown:
		return h.sync.SyncDown(ctx, actor.TenantID)

	case ActionSyncUp:
		var state snapshot.ClientState
		if err := h.decode(raw, &state); err != nil {
			return nil, err
		}
		if err := h.sync.SyncUp(ctx, actor.TenantID, state); err != nil {
			return nil, err
		}
		// The client replaces its local state with the merged result.
		return h.sync.SyncDown(ctx, actor.TenantID)

	case ActionHeartbeat:
		var p heartbeatPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		var since time.Time
		if p.Since > 0 {
			since = time.UnixMilli(p.Since)
		}
		return h.heartbeat.Delta(ctx, actor.TenantID, since)

	case ActionStartJob:
		var p estimatePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.jobs.StartJob(ctx, actor.TenantID, p.EstimateID)

	case ActionCompleteJob:
		var p completeJobPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.jobs.CompleteJob(ctx, actor.TenantID, p.EstimateID, p.Actuals)

	case ActionMarkJobPaid:
		var p estimatePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.jobs.MarkJobPaid(ctx, actor.TenantID, p.EstimateID)

	case ActionDeleteEstimate:
		var p estimatePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return map[string]string{"id": p.EstimateID}, h.jobs.DeleteEstimate(ctx, actor.TenantID, p.EstimateID)

	case ActionSendMessage:
		var p sendMessagePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		sender := messages.SenderAdmin
		if actor.Role == accounts.RoleCrew {
			sender = messages.SenderCrew
		}
		return h.messages.Send(ctx, actor.TenantID, p.EstimateID, p.Content, sender)

	case ActionLogTime:
		var p logTimePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		entry := ledger.TimeEntry{JobID: p.JobID, TechName: p.TechName, StartTime: p.StartTime, EndTime: p.EndTime}
		return nil, h.jobs.LogTime(ctx, actor.TenantID, entry)

	case ActionCreateWorkOrder:
		var p workOrderPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		return h.docs.CreateWorkOrder(ctx, actor.TenantID, p.EstimateID, p.CrewNotes)

	case ActionSavePDF:
		var p savePDFPayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		url, err := h.docs.SavePDF(ctx, actor.TenantID, p.EstimateID, p.FileName, p.Data)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url}, nil

	case ActionUploadImage:
		var p uploadImagePayload
		if err := h.decode(raw, &p); err != nil {
			return nil, err
		}
		url, err := h.docs.UploadImage(ctx, actor.TenantID, p.EstimateID, p.FileName, p.Data)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url}, nil
	}
	return nil, fmt.Errorf("%w: unroutable action %s", shared.ErrValidation, action)
}

// decode unmarshals and validates an action payload.
func (h *Handler) decode(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: malformed payload", shared.ErrValidation)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrValidation, validationDetail(err))
	}
	return nil
}

func validationDetail(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "invalid payload"
	}
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

func (h *Handler) observe(action, outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveAction(action, outcome)
	}
}

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return header
}

// payloadUsername peeks the username out of an account payload so the
// signup lock can key on it before full decoding.
func (e Envelope) payloadUsername() string {
	var probe struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(e.Payload, &probe)
	return strings.TrimSpace(probe.Username)
}
