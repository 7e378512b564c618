// Package adminapi exposes the operator HTTP surface of the connection pool.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/minibot"
	"github.com/TolesaD/botomics/core/store"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Pool is the part of the connection pool operators drive.
type Pool interface {
	Status() minibot.Status
	DebugDump() []minibot.DebugEntry
	ForceReinitializeAll(ctx context.Context) (int, error)
	StartByID(ctx context.Context, botID int64) (*minibot.Connection, error)
	StopOne(ctx context.Context, botID int64) bool
}

// Handler serves the admin routes.
type Handler struct {
	pool Pool
	// waitTimeout bounds ?wait=1 on start requests.
	waitTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(pool Pool) *Handler {
	return &Handler{pool: pool, waitTimeout: 30 * time.Second}
}

// Router builds the chi router with the shared middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLog)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the admin routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/bots", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/debug", h.Debug)
		r.Post("/reinit", h.Reinit)
		r.Post("/{id}/start", h.Start)
		r.Post("/{id}/stop", h.Stop)
	})
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		ctx := logger.WithRID(r.Context(), chiMiddleware.GetReqID(r.Context()))
		logger.Debug(ctx, logger.CompHTTP, "request.done",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports liveness together with the pool summary.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	st := h.pool.Status()
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"initialized": st.Initialized,
		"active":      st.ActiveCount,
	})
}

// Status returns the pool summary.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.pool.Status())
}

// Debug lists every pool entry.
func (h *Handler) Debug(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"bots": h.pool.DebugDump()})
}

// Reinit restarts every active bot and reports how many came up.
func (h *Handler) Reinit(w http.ResponseWriter, r *http.Request) {
	n, err := h.pool.ForceReinitializeAll(r.Context())
	if err != nil {
		logger.Error(r.Context(), logger.CompHTTP, "reinit.failed", logger.Err(err))
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"started": n, "status": h.pool.Status()})
}

// Start launches one bot. With ?wait=1 it waits for the handshake.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	c, err := h.pool.StartByID(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "bot not found")
		return
	case errors.Is(err, minibot.ErrInvalidToken):
		Error(w, http.StatusUnprocessableEntity, "bot token is invalid")
		return
	case errors.Is(err, minibot.ErrNotActive):
		Error(w, http.StatusConflict, "bot is disabled")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("wait") != "" {
		ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
		defer cancel()
		if err := c.Await(ctx); err != nil {
			JSON(w, http.StatusBadGateway, map[string]interface{}{
				"bot_id": id,
				"state":  c.State(),
				"error":  logger.Redact(err.Error()),
			})
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{"bot_id": id, "state": c.State()})
		return
	}
	JSON(w, http.StatusAccepted, map[string]interface{}{"bot_id": id, "state": c.State()})
}

// Stop tears one bot down.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(w, r)
	if !ok {
		return
	}
	stopped := h.pool.StopOne(r.Context(), id)
	JSON(w, http.StatusOK, map[string]interface{}{"bot_id": id, "stopped": stopped})
}

func botID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid bot id")
		return 0, false
	}
	return id, true
}

// Serve runs the admin server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompHTTP, "server.listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
