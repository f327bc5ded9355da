package content

import (
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

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidContent):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrContentNotFound):
		return http.StatusNotFound, "not found"
	}
	return account.StatusFor(err)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw(op+" failed", "path", r.URL.Path, "err", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	it, err := h.svc.Create(r.Context(), uid, in)
	if err != nil {
		h.fail(w, r, "create content", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, it)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get content", err)
		return
	}
	h.writeJSON(w, http.StatusOK, it)
}

// ListByAccount supports ?limit= and ?offset=.
func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	out, err := h.svc.ListByAccount(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		h.fail(w, r, "list content", err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	n, err := h.svc.BackfillAttribution(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "backfill attribution", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
