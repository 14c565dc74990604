package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hsklearn/vocab-auth/authenticate/internal/metrics"
	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
	"github.com/hsklearn/vocab-auth/authenticate/internal/service"
	"github.com/hsklearn/vocab-auth/common/httputil"
	"github.com/hsklearn/vocab-auth/common/logging"
)

const (
	ActionVerifyUser         = "verifyUser"
	ActionRecordLoginHistory = "recordLoginHistory"
	ActionGetLoginHistory    = "getLoginHistory"
	ActionUnlockUser         = "unlockUser"
)

const (
	msgSystemInitialized = "system initialized, sign in with the default administrator account"
	msgLoginSuccessful   = "login successful"
	msgUserNotFound      = "user not found"
	msgAccountUnlocked   = "account unlocked"
	msgUnknownAction     = "unknown action"
)

// AuthService is the subset of service.AuthService the handler drives.
type AuthService interface {
	Verify(ctx context.Context, username, password string, meta service.Meta) (service.VerifyResult, error)
	VerifyAuditingBlocked(ctx context.Context, username, password string, meta service.Meta) (service.VerifyResult, error)
	RecordAttempt(ctx context.Context, username string, success bool, timestamp *time.Time, meta service.Meta) (*models.AuditEntry, error)
	ListHistory(ctx context.Context) ([]*models.AuditEntry, error)
	Unlock(ctx context.Context, username string) error
}

type Options struct {
	// AuditBlockedAttempts selects VerifyAuditingBlocked for verifyUser.
	AuditBlockedAttempts bool
	// Location renders lock times and interprets zone-less timestamps.
	Location *time.Location
}

// ActionHandler serves the single action endpoint.
type ActionHandler struct {
	svc    AuthService
	opts   Options
	logger *logging.Logger
}

func NewActionHandler(svc AuthService, opts Options, logger *logging.Logger) *ActionHandler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ActionHandler{svc: svc, opts: opts, logger: logger}
}

func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		h.fail(w, r, "", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	p, err := readParams(w, r)
	if err != nil {
		h.fail(w, r, "", http.StatusBadRequest, err.Error())
		return
	}

	action := p["action"]
	switch action {
	case ActionVerifyUser:
		h.verifyUser(w, r, p)
	case ActionRecordLoginHistory:
		h.recordLoginHistory(w, r, p)
	case ActionGetLoginHistory:
		h.getLoginHistory(w, r)
	case ActionUnlockUser:
		h.unlockUser(w, r, p)
	default:
		h.fail(w, r, "unknown", http.StatusBadRequest, msgUnknownAction)
	}
}

func (h *ActionHandler) verifyUser(w http.ResponseWriter, r *http.Request, p params) {
	username, err := p.require("username")
	if err != nil {
		h.fail(w, r, ActionVerifyUser, http.StatusBadRequest, err.Error())
		return
	}
	password, err := p.require("password")
	if err != nil {
		h.fail(w, r, ActionVerifyUser, http.StatusBadRequest, err.Error())
		return
	}

	verify := h.svc.Verify
	if h.opts.AuditBlockedAttempts {
		verify = h.svc.VerifyAuditingBlocked
	}
	res, err := verify(r.Context(), username, password, clientMeta(r))
	if err != nil {
		h.fault(w, r, ActionVerifyUser, err)
		return
	}

	h.ok(w, r, ActionVerifyUser, NewVerifyResponse(res, h.opts.Location))
}

// NewVerifyResponse renders a verification result, with lock times in loc.
func NewVerifyResponse(res service.VerifyResult, loc *time.Location) models.VerifyResponse {
	resp := models.VerifyResponse{
		Success:       res.Authenticated(),
		Authenticated: res.Authenticated(),
	}
	if res.LockedAt != nil {
		resp.Locked = true
		resp.LockTime = models.FormatLockTime(*res.LockedAt, loc)
	}

	switch res.Outcome {
	case service.OutcomeSystemInitialized:
		resp.Message = msgSystemInitialized
	case service.OutcomeUserNotFound:
		resp.Message = msgUserNotFound
	case service.OutcomeAlreadyLocked:
		resp.Message = fmt.Sprintf("account locked since %s, contact an administrator", resp.LockTime)
	case service.OutcomeSuccess:
		resp.Message = msgLoginSuccessful
		resp.Username = res.Username
	case service.OutcomeInvalidCredential:
		if res.Locked {
			resp.Message = fmt.Sprintf("too many failed attempts, account locked at %s", resp.LockTime)
		} else {
			resp.AttemptsRemaining = res.Remaining
			resp.Message = fmt.Sprintf("wrong password, %d attempts remaining", res.Remaining)
		}
	}
	return resp
}

func (h *ActionHandler) recordLoginHistory(w http.ResponseWriter, r *http.Request, p params) {
	username, err := p.require("username")
	if err != nil {
		h.fail(w, r, ActionRecordLoginHistory, http.StatusBadRequest, err.Error())
		return
	}
	success, err := p.requireBool("success")
	if err != nil {
		h.fail(w, r, ActionRecordLoginHistory, http.StatusBadRequest, err.Error())
		return
	}
	ts, err := p.optionalTime("timestamp", h.opts.Location)
	if err != nil {
		h.fail(w, r, ActionRecordLoginHistory, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.svc.RecordAttempt(r.Context(), username, success, ts, clientMeta(r)); err != nil {
		h.fault(w, r, ActionRecordLoginHistory, err)
		return
	}
	h.ok(w, r, ActionRecordLoginHistory, models.AckResponse{Success: true})
}

func (h *ActionHandler) getLoginHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListHistory(r.Context())
	if err != nil {
		h.fault(w, r, ActionGetLoginHistory, err)
		return
	}
	h.ok(w, r, ActionGetLoginHistory, models.NewHistoryResponse(entries))
}

func (h *ActionHandler) unlockUser(w http.ResponseWriter, r *http.Request, p params) {
	username, err := p.require("username")
	if err != nil {
		h.fail(w, r, ActionUnlockUser, http.StatusBadRequest, err.Error())
		return
	}

	err = h.svc.Unlock(r.Context(), username)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		h.ok(w, r, ActionUnlockUser, models.AckResponse{Success: false, Message: msgUserNotFound})
	case err != nil:
		h.fault(w, r, ActionUnlockUser, err)
	default:
		h.ok(w, r, ActionUnlockUser, models.AckResponse{Success: true, Message: msgAccountUnlocked})
	}
}

func (h *ActionHandler) ok(w http.ResponseWriter, r *http.Request, action string, body any) {
	metrics.RequestsTotal.WithLabelValues(action, strconv.Itoa(http.StatusOK)).Inc()
	httputil.WriteJSON(w, http.StatusOK, body)
}

func (h *ActionHandler) fail(w http.ResponseWriter, r *http.Request, action string, status int, msg string) {
	if action == "" {
		action = "none"
	}
	metrics.RequestsTotal.WithLabelValues(action, strconv.Itoa(status)).Inc()
	h.logger.DebugContext(r.Context(), "rejected request", logging.Action(action), logging.Status(status), slog.String("reason", msg))
	httputil.WriteFailure(w, status, msg)
}

// fault reports an unexpected error as a 500 carrying its message.
func (h *ActionHandler) fault(w http.ResponseWriter, r *http.Request, action string, err error) {
	metrics.RequestsTotal.WithLabelValues(action, strconv.Itoa(http.StatusInternalServerError)).Inc()
	if errors.Is(err, service.ErrConfiguration) {
		h.logger.ErrorContext(r.Context(), "credential store misconfigured", logging.Action(action), logging.Error(err))
	} else {
		h.logger.ErrorContext(r.Context(), "action failed", logging.Action(action), logging.Error(err))
	}
	httputil.WriteFailure(w, http.StatusInternalServerError, err.Error())
}

func clientMeta(r *http.Request) service.Meta {
	m := httputil.NewClientMeta(r)
	return service.Meta{IP: m.IP, UserAgent: m.UserAgent}
}
