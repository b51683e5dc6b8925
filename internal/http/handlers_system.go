package http

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"famfinance/internal/attachments"
	"famfinance/internal/core"
	"famfinance/internal/middleware/ratelimit"
	"famfinance/internal/middleware/security"
	"famfinance/internal/middleware/trace"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady pings the database and reports the age of the rate table.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if s.deps.Store == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "check", "database", "error", err)
		checks["database"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if s.deps.Rates != nil {
		if updated := s.deps.Rates.UpdatedAt(); updated.IsZero() {
			checks["rates"] = "fallback"
		} else {
			checks["rates"] = "updated " + updated.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

type metricsResponse struct {
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rate_limit"`
	Security  security.DetectionMetrics `json:"security"`
	Uptime    string                    `json:"uptime"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rates == nil {
		writeError(w, r, errNotConfigured("exchange rates"))
		return
	}
	resp := map[string]any{
		"base":  s.deps.Rates.Base(),
		"rates": s.deps.Rates.Rates(),
	}
	if updated := s.deps.Rates.UpdatedAt(); !updated.IsZero() {
		resp["updated_at"] = updated.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	var (
		cats []core.Category
		err  error
	)
	if s.deps.Categories != nil {
		cats, err = s.deps.Categories.List(r.Context())
	} else {
		cats, err = s.deps.Store.Queries().ListCategories(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cats})
}

// handleAttachmentFile serves stored attachments to members of the owning
// family. Other families get 404, not 403.
func (s *Server) handleAttachmentFile(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, prefix)), "/")
		if rel == "" || attachments.FamilyOf(rel) != id.FamilyID {
			ErrorResponse(http.StatusNotFound, CodeNotFound, "attachment not found").Write(w)
			return
		}
		name := filepath.Join(s.deps.AttachmentsDir, filepath.FromSlash(rel))
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			ErrorResponse(http.StatusNotFound, CodeNotFound, "attachment not found").Write(w)
			return
		}
		http.ServeFile(w, r, name)
	}
}
