package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/circonus-labs/cosi-server/internal/domain"
	"github.com/circonus-labs/cosi-server/internal/middleware"
	"github.com/circonus-labs/cosi-server/internal/packages"
	"github.com/circonus-labs/cosi-server/internal/templates"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Resolver answers package lookups
type Resolver interface {
	IsSupported(dist, vers, arch string) bool
	Package(dist, vers, arch string) (string, bool)
	Error(dist, vers, arch string) *packages.LookupError
	SupportedList() []string
	Files() []string
	LoadedAt() time.Time
	DefaultURL() string
}

// Handlers provides HTTP handlers for the API
type Handlers struct {
	resolver  Resolver
	templates *templates.Store
	logger    *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(resolver Resolver, store *templates.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		resolver:  resolver,
		templates: store,
		logger:    logger,
	}
}

// Health returns health check information
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	supported := len(h.resolver.SupportedList())

	status := "ok"
	if supported == 0 {
		status = "degraded"
	}

	resp := domain.HealthResponse{
		Status:         status,
		PackageURL:     h.resolver.DefaultURL(),
		PackageLists:   h.resolver.Files(),
		LoadedAt:       h.resolver.LoadedAt().Format(time.RFC3339),
		SupportedCount: supported,
	}
	if h.templates != nil {
		resp.TemplateCache = h.templates.CacheStats()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ping returns a simple pong response
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.PingResponse{Pong: true})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	version, commit, buildTime := BuildInfo()

	writeJSON(w, http.StatusOK, domain.VersionResponse{
		Version:   version,
		GitCommit: commit,
		BuildTime: buildTime,
	})
}

// BuildInfo returns the version, commit and build time of the binary
func BuildInfo() (string, string, string) {
	version := Version
	commit := GitCommit
	buildTime := BuildTime

	// Try to get from build info if not set
	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" {
		version = info.Main.Version
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			}
		}
	}

	return version, commit, buildTime
}

// Package resolves the agent package for the host described by the query
// string (type, dist, vers, arch).
//
// The response is JSON when the client accepts it, a redirect to the
// package when redirect is set, and the plain package reference otherwise.
func (h *Handlers) Package(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := domain.PackageQuery{
		Type: query.Get("type"),
		Dist: query.Get("dist"),
		Vers: query.Get("vers"),
		Arch: query.Get("arch"),
	}

	if err := domain.ValidatePackageQuery(&q); err != nil {
		writeValidationError(w, r, err)
		return
	}

	supported := h.resolver.IsSupported(q.Dist, q.Vers, q.Arch)
	middleware.AnnotatePackage(r.Context(), q.Dist, q.Vers, q.Arch, supported)

	if !supported {
		middleware.PackageLookups.WithLabelValues("not_found").Inc()

		lerr := h.resolver.Error(q.Dist, q.Vers, q.Arch)
		h.logger.Debug("package not found",
			"dist", q.Dist,
			"vers", q.Vers,
			"arch", q.Arch,
			"reason", lerr.Message,
		)
		writeNotFound(w, r, lerr)
		return
	}

	ref, _ := h.resolver.Package(q.Dist, q.Vers, q.Arch)
	middleware.PackageLookups.WithLabelValues("found").Inc()

	base, file, _ := strings.Cut(ref, packages.Delimiter)
	omnios := strings.EqualFold(q.Dist, "OmniOS")

	switch {
	case acceptsJSON(r):
		writeJSON(w, http.StatusOK, domain.PackageResponse{
			Package: file,
			URL:     base,
		})

	case isTruthy(query.Get("redirect")) && !omnios:
		http.Redirect(w, r, base+file, http.StatusFound)

	case omnios:
		writeText(w, http.StatusOK, ref)

	default:
		writeText(w, http.StatusOK, base+file)
	}
}

// Packages lists every supported distribution, version and architecture
func (h *Handlers) Packages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.SupportedList())
}

// Template returns a check, graph, dashboard, worksheet or ruleset template
func (h *Handlers) Template(w http.ResponseWriter, r *http.Request) {
	ref := domain.TemplateRef{
		Category: chi.URLParam(r, "category"),
		Name:     chi.URLParam(r, "name"),
	}

	if err := domain.ValidateTemplateRef(&ref); err != nil {
		writeValidationError(w, r, err)
		return
	}

	if h.templates == nil {
		writeError(w, r, http.StatusNotFound, "Not Found", "Templates are not configured")
		return
	}

	tmpl, cached, err := h.templates.Get(ref)
	if cached {
		middleware.TemplateCacheHits.Inc()
	} else {
		middleware.TemplateCacheMisses.Inc()
	}
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Not Found",
				"Template not found: "+ref.Category+"/"+ref.Name)
			return
		}
		h.logger.Error("failed to load template",
			"category", ref.Category,
			"name", ref.Name,
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error",
			"Template could not be loaded")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tmpl)
}

// Helper functions

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func isTruthy(v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// any other non-empty value, e.g. redirect=yes
		return true
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	resp := domain.ErrorResponse{
		Status:    status,
		Title:     title,
		Detail:    detail,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}
	writeJSON(w, status, resp)
}

// writeNotFound reports a lookup miss with the request id appended, as
// JSON or plain text depending on what the client accepts.
func writeNotFound(w http.ResponseWriter, r *http.Request, lerr *packages.LookupError) {
	reqID := chimiddleware.GetReqID(r.Context())
	msg := lerr.Message
	if reqID != "" {
		msg += " (request id: " + reqID + ")"
	}

	if !acceptsJSON(r) {
		writeText(w, http.StatusNotFound, msg)
		return
	}

	writeJSON(w, http.StatusNotFound, domain.ErrorResponse{
		Status:    http.StatusNotFound,
		Title:     "Not Found",
		Code:      lerr.Code,
		Detail:    msg,
		RequestID: reqID,
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	resp := domain.ErrorResponse{
		Status:    http.StatusBadRequest,
		Title:     "Bad Request",
		Detail:    "Invalid request parameters",
		RequestID: chimiddleware.GetReqID(r.Context()),
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, domain.ErrorDetail{
				Message:  "failed " + fe.Tag() + " validation",
				Location: strings.ToLower(fe.Field()),
				Value:    fe.Value(),
			})
		}
	}

	writeJSON(w, http.StatusBadRequest, resp)
}
