package httphost

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/gatt"
)

// maxBodySize bounds a page call body.
const maxBodySize = 1 << 20

// keepAlive is the interval of SSE comments that keep idle proxies from
// closing the stream.
const keepAlive = 15 * time.Second

// CallRequest is the body of POST /bridge/{method}.
type CallRequest struct {
	Token  string          `json:"token"`
	Params json.RawMessage `json:"params"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// RouterConfig selects the optional endpoints.
type RouterConfig struct {
	Metrics bool
}

// Router mounts the page endpoints for b on a chi router.
func (h *Host) Router(b *bridge.Bridge, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/inject.js", h.serveScript)

	r.Route("/bridge", func(r chi.Router) {
		r.Get("/events", h.serveEvents)
		r.Get("/debug", h.debugMenu(b))
		r.Post("/debug/{index}", h.runDebugAction(b))
		r.Post("/{method}", h.call(b))
	})

	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (h *Host) serveScript(w http.ResponseWriter, _ *http.Request) {
	script, err := h.Script()
	if err != nil {
		writeError(w, err, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, script)
}

func (h *Host) call(b *bridge.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := chi.URLParam(r, "method")

		var req CallRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid call body: %w", err), http.StatusBadRequest)
			return
		}
		params := paramsString(req.Params)

		switch method {
		case bridge.MethodBluetoothSetMode:
			err := b.BluetoothSetMode(params)
			switch {
			case errors.Is(err, gatt.ErrSessionActive):
				writeError(w, err, http.StatusConflict)
			case errors.Is(err, bridge.ErrBluetoothDisabled):
				writeError(w, err, http.StatusNotImplemented)
			case err != nil:
				writeError(w, err, http.StatusInternalServerError)
			default:
				writeJSON(w, b.BluetoothGetMode(), http.StatusOK)
			}
			return
		case bridge.MethodBluetoothGetMode:
			writeJSON(w, b.BluetoothGetMode(), http.StatusOK)
			return
		}

		err := b.Dispatch(method, req.Token, params)
		switch {
		case errors.Is(err, bridge.ErrMissingToken):
			writeError(w, err, http.StatusBadRequest)
		case errors.Is(err, bridge.ErrUnknownMethod):
			writeError(w, err, http.StatusNotFound)
		case err != nil:
			writeError(w, err, http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}
}

func (h *Host) debugMenu(b *bridge.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		actions := b.OpenDebugMenu()
		titles := make([]string, 0, len(actions))
		for _, a := range actions {
			titles = append(titles, a.Title)
		}
		writeJSON(w, titles, http.StatusOK)
	}
}

func (h *Host) runDebugAction(b *bridge.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeError(w, fmt.Errorf("%w: %q", bridge.ErrUnknownAction, chi.URLParam(r, "index")), http.StatusNotFound)
			return
		}
		if err := b.RunDebugAction(index); err != nil {
			writeError(w, err, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Host) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	sub, unsubscribe := h.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-sub.events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				h.logger.Debug("event stream closed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Host) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// paramsString turns the params member into the string the bridge methods
// take: JSON strings are unwrapped, anything else is passed as JSON text.
func paramsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("cannot encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	writeJSON(w, ErrorResponse{Error: err.Error(), Code: statusCode}, statusCode)
}
