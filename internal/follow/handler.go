package follow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/auth"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Follow handles PUT /v1/accounts/{id}/followers/{followerID}.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	h.edge(w, r, "follow", h.svc.Follow)
}

// Unfollow handles DELETE /v1/accounts/{id}/followers/{followerID}.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.edge(w, r, "unfollow", h.svc.Unfollow)
}

func (h *Handler) edge(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, followerID, followeeID string) error) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := fn(r.Context(), uid, chi.URLParam(r, "followerID"), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	out, err := h.svc.ListFollowers(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.fail(w, r, "list followers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrSelfFollow) {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	status, msg := account.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw(op+" failed", "path", r.URL.Path, "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
