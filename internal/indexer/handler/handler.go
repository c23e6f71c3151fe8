package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/logger"
)

const (
	defaultRecent = 10
	maxRecent     = 1000
	// maxRenderNodes caps GET /api/v1/tree; larger dumps are refused.
	maxRenderNodes = 10_000
	maxBodyBytes   = 1 << 16
)

type Handler struct {
	engine *indexer.Engine
	logger *slog.Logger
}

func New(engine *indexer.Engine) *Handler {
	return &Handler{
		engine: engine,
		logger: slog.Default().With("component", "post-handler"),
	}
}

// Register mounts the API and health routes on mux.
func (h *Handler) Register(mux *http.ServeMux, checker *health.Checker) {
	mux.HandleFunc("POST /api/v1/posts", h.Create)
	mux.HandleFunc("GET /api/v1/posts/popular", h.MostPopular)
	mux.HandleFunc("GET /api/v1/posts/recent", h.MostRecent)
	mux.HandleFunc("GET /api/v1/posts/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/posts/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/posts/{id}/like", h.Like)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/tree", h.Tree)
	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var p post.Post
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := post.Validate(p); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.Insert(p); err != nil {
		logger.FromContext(r.Context()).Error("insert failed", "id", p.ID, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := h.engine.FindByID(id)
	if !ok {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrPostNotFound, http.StatusNotFound, "no post with id %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.engine.Delete(id) {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrPostNotFound, http.StatusNotFound, "no post with id %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like responds with the post after the increment.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.engine.Like(id) {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrPostNotFound, http.StatusNotFound, "no post with id %q", id))
		return
	}
	p, _ := h.engine.FindByID(id)
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) MostPopular(w http.ResponseWriter, r *http.Request) {
	p, ok := h.engine.MostPopular()
	if !ok {
		h.writeAppError(w, apperrors.New(apperrors.ErrPostNotFound, http.StatusNotFound, "tree is empty"))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) MostRecent(w http.ResponseWriter, r *http.Request) {
	k := defaultRecent
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = min(parsed, maxRecent)
	}
	posts := h.engine.MostRecent(k)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"k":     k,
		"count": len(posts),
		"posts": posts,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Tree writes the vertical structure dump as plain text.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	if n := h.engine.Len(); n > maxRenderNodes {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			"tree has "+strconv.FormatInt(n, 10)+" nodes, dumps are limited to "+strconv.Itoa(maxRenderNodes))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.engine.Render(w); err != nil {
		h.logger.Error("failed to render tree", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), msg)
}
