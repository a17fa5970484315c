package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/dialoglog/internal/archive"
	"github.com/pavelanni/dialoglog/internal/dialog"
	"github.com/pavelanni/dialoglog/internal/i18n"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *archive.Store
}

// New creates a new Handler.
func New(s *archive.Store) *Handler {
	return &Handler{store: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/stats", h.handleStats)
}

// sessionSummary is an archived session row plus the grade label in the
// language of the request.
type sessionSummary struct {
	archive.SessionRow
	GradeLabel string `json:"grade_label,omitempty"`
}

type sessionDetail struct {
	sessionSummary
	QuestionsAndAnswers []archive.QARow `json:"questions_and_answers"`
}

func summarize(ctx context.Context, row archive.SessionRow) sessionSummary {
	s := sessionSummary{SessionRow: row}
	if row.GradeBand != "" {
		s.GradeLabel = dialog.GradeLabel(ctx, row.GradeBand)
	}
	return s
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListSessions()
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]sessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, summarize(r.Context(), row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	row, err := h.store.GetSession(sessionID)
	if err != nil {
		slog.Error("failed to load session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "SessionNotFound"))
		return
	}

	qas, err := h.store.QAsForSession(sessionID)
	if err != nil {
		slog.Error("failed to load QA entries", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if qas == nil {
		qas = []archive.QARow{}
	}

	writeJSON(w, http.StatusOK, sessionDetail{
		sessionSummary:      summarize(r.Context(), *row),
		QuestionsAndAnswers: qas,
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	rep, err := h.store.Summary()
	if err != nil {
		slog.Error("failed to compute summary", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
