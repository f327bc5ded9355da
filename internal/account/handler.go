package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
)

const sseKeepAlive = 25 * time.Second

// Subscriber is the subscribing half of bus.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*bus.Subscription, error)
}

// Handler exposes HTTP endpoints for account identity operations.
type Handler struct {
	svc    *Service
	events Subscriber
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, events Subscriber, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, events: events, logger: logger}
}

// StatusFor maps service errors onto an HTTP status and a message safe to
// show the user.
func StatusFor(err error) (int, string) {
	switch Classify(err) {
	case ClassCorrectable:
		var pe *ProfileNotFoundError
		if errors.As(err, &pe) {
			return http.StatusUnprocessableEntity, pe.Error()
		}
		return http.StatusBadRequest, "invalid account type"
	case ClassForbidden:
		return http.StatusForbidden, "forbidden"
	case ClassNotFound:
		return http.StatusNotFound, "not found"
	case ClassRetryable:
		return http.StatusServiceUnavailable, "something went wrong, try again"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw(op+" failed", "path", r.URL.Path, "err", err)
	} else {
		h.logger.Debugw(op+" rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return id, ok
}

// List returns the caller's accounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Store.ListAccounts(r.Context(), uid)
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ProvisionRequest request body for the account creation endpoint.
type ProvisionRequest struct {
	AccountType string `json:"account_type"`
}

// Provision finds or creates the caller's account of the requested type.
// It answers 201 when the account was created and 200 when it existed.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	t, _ := entity.ParseAccountType(req.AccountType)
	id, created, err := h.svc.Store.ProvisionAccount(r.Context(), uid, t)
	if err != nil {
		h.fail(w, r, "provision account", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		if _, err := h.svc.Projector.RefreshDisplayInfo(r.Context(), id); err != nil {
			h.logger.Warnw("initial display snapshot not stored", "account_id", id, "err", err)
		}
	}
	a, err := h.svc.Store.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "provision account", err)
		return
	}
	h.writeJSON(w, status, a)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Store.Deactivate(r.Context(), uid, id); err != nil {
		h.fail(w, r, "deactivate account", err)
		return
	}
	h.svc.Projector.Forget(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Store.GetOwnedAccount(r.Context(), uid, id); err != nil {
		h.fail(w, r, "refresh display info", err)
		return
	}
	d, err := h.svc.Projector.RefreshDisplayInfo(r.Context(), id)
	if err != nil {
		h.fail(w, r, "refresh display info", err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

func (h *Handler) RecomputeStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Store.GetOwnedAccount(r.Context(), uid, id); err != nil {
		h.fail(w, r, "recompute stats", err)
		return
	}
	st, err := h.svc.Store.RecomputeStats(r.Context(), id)
	if err != nil {
		h.fail(w, r, "recompute stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Tracker.GetActiveAccount(r.Context(), uid)
	if err != nil {
		h.fail(w, r, "get active account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// SwitchRequest request body for the switch endpoint.
type SwitchRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, err := h.svc.Tracker.SwitchAccount(r.Context(), uid, req.AccountID)
	if err != nil {
		h.fail(w, r, "switch account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) ClearActive(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Tracker.ClearSelection(r.Context(), uid); err != nil {
		h.fail(w, r, "clear selection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveRequest request body for the posting identity endpoint.
type ResolveRequest struct {
	AccountType string `json:"account_type"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	id, err := h.svc.Resolver.ResolvePostingIdentity(r.Context(), uid, entity.AccountType(req.AccountType))
	if err != nil {
		h.fail(w, r, "resolve posting identity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, id)
}

// SyncRequest request body for the navigation endpoint.
type SyncRequest struct {
	Path string `json:"path"`
}

func (h *Handler) NavigationSync(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	res, err := h.svc.Sync.Sync(r.Context(), uid, req.Path)
	if err != nil {
		h.fail(w, r, "navigation sync", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Events streams the caller's account changes as server-sent events until
// the client goes away. Payloads are hints; clients refetch.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	sub, err := h.events.Subscribe(r.Context(), bus.UserChannel(uid))
	if err != nil {
		h.logger.Warnw("subscribe failed", "user_id", uid, "err", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "something went wrong, try again"})
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	tick := time.NewTicker(sseKeepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
