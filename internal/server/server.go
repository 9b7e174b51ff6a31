package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pavel-fokin/filehub/internal/config"
	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/pavel-fokin/filehub/internal/metrics"
)

const (
	userHeader  = "X-FileHub-User"
	groupHeader = "X-FileHub-Group"
)

// New builds the HTTP server around a configured file service
func New(cfg *config.Config, fileService *files.Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /v1/files", auth(cfg.AdminToken, searchFiles(fileService)))
	mux.HandleFunc("GET /v1/list", auth(cfg.AdminToken, listFiles(fileService)))
	mux.HandleFunc("POST /v1/files/{id}/send", auth(cfg.AdminToken, sendFile(fileService)))
	mux.HandleFunc("POST /v1/find-and-send", auth(cfg.AdminToken, findAndSend(fileService)))
	mux.HandleFunc("POST /v1/index", auth(cfg.AdminToken, indexFiles(fileService)))
	mux.HandleFunc("GET /v1/pull/{id}", signedPull(fileService))

	handler := loggingMiddleware(limitBody(mux, cfg.MaxBodySize))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func identity(r *http.Request) files.Identity {
	return files.Identity{
		UserID:  strings.TrimSpace(r.Header.Get(userHeader)),
		GroupID: strings.TrimSpace(r.Header.Get(groupHeader)),
	}
}

func searchFiles(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}
			limit = n
		}

		slog.Info("Searching files", "query", query, "limit", limit)
		metrics.RecordSearch()

		results, err := fileService.SearchLocalFiles(query, identity(r), limit)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func listFiles(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordSearch()

		lines, err := fileService.List(r.URL.Query().Get("q"), identity(r))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
	}
}

func sendFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("Sending file", "file_id", id)

		plan, err := fileService.SendByID(id, identity(r))
		writePlan(w, plan, err)
	}
}

type findRequest struct {
	Query string `json:"query"`
}

func findAndSend(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req findRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		slog.Info("Finding file to send", "query", req.Query)

		plan, err := fileService.FindAndSend(req.Query, identity(r))
		writePlan(w, plan, err)
	}
}

type indexRequest struct {
	Mode      files.ScanMode `json:"mode"`
	Recursive *bool          `json:"recursive"`
}

func indexFiles(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := indexRequest{Mode: files.ScanAll}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}
		}
		if req.Mode != files.ScanImages {
			req.Mode = files.ScanAll
		}
		recursive := req.Recursive == nil || *req.Recursive

		added, path, err := fileService.Index(req.Mode, recursive)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.RecordIndexed(added)

		writeJSON(w, http.StatusOK, map[string]any{"added": added, "registry": path})
	}
}

func signedPull(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		signature := r.URL.Query().Get("signature")
		slog.Info("Pulling file", "ticket", id)

		ticket, content, err := fileService.Pull(id, signature)
		if err != nil {
			slog.Error("Pull failed", "error", err, "ticket", id)
			http.Error(w, "Pull failed", http.StatusNotFound)
			return
		}
		defer content.Close()

		contentType := mime.TypeByExtension(filepath.Ext(ticket.Path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ticket.Name}))
		w.Header().Set("Content-Length", strconv.FormatInt(ticket.Size, 10))
		w.WriteHeader(http.StatusOK)

		n, err := io.Copy(w, content)
		metrics.RecordPull(n)
		if err != nil {
			slog.Error("Pull interrupted", "error", err, "ticket", id, "bytes", n)
		}
	}
}

// writePlan hides the host path of callback plans from the transcript.
func writePlan(w http.ResponseWriter, plan *files.DeliveryPlan, err error) {
	if err != nil {
		metrics.RecordDelivery(deliveryOutcome(err))
		writeError(w, err)
		return
	}

	out := *plan
	switch {
	case out.Callback:
		out.Path = ""
		metrics.RecordDelivery("callback")
	default:
		metrics.RecordDelivery("direct")
	}
	if out.OverThreshold {
		metrics.RecordDelivery("over_threshold")
	}
	writeJSON(w, http.StatusOK, out)
}

func deliveryOutcome(err error) string {
	switch {
	case errors.Is(err, files.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, files.ErrNotFound), errors.Is(err, files.ErrEmptyResult):
		return "not_found"
	default:
		return "error"
	}
}

// writeError maps core errors to user-facing responses. Denials carry
// no detail about the rule that matched.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, files.ErrPermissionDenied), errors.Is(err, files.ErrOutsideRoot):
		http.Error(w, "Permission denied", http.StatusForbidden)
	case errors.Is(err, files.ErrEmptyResult):
		http.Error(w, "No matching files, try different keywords", http.StatusNotFound)
	case errors.Is(err, files.ErrNotFound):
		http.Error(w, "No such file", http.StatusNotFound)
	case errors.Is(err, files.ErrIndexCorrupt), errors.Is(err, files.ErrIndexMissing):
		slog.Error("Registry unavailable", "error", err)
		http.Error(w, fmt.Sprintf("Registry unavailable: %v", err), http.StatusInternalServerError)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func auth(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func limitBody(next http.Handler, maxSize int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		// Read the body up front so oversized requests fail before dispatch.
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "Request entity too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, wrapped.statusCode, duration)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
