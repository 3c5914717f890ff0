// Package server exposes the studio HTTP and WebSocket API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tubestudio/internal/ratelimit"
	"tubestudio/internal/usertoken"
	"tubestudio/internal/util"
	"tubestudio/pkg/ai"
	"tubestudio/pkg/domain"
	"tubestudio/pkg/store"
	"tubestudio/services/studio/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  *usertoken.Verifier
	Limiter        *ratelimit.FixedWindowLimiter
	LiveAPIKey     string
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the studio service.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	limiter        *ratelimit.FixedWindowLimiter
	liveAPIKey     string
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		limiter:        cfg.Limiter,
		liveAPIKey:     cfg.LiveAPIKey,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithClientIP(s.trustedProxies,
		util.WithRequestID(util.WithRequestLog("studio", util.WithSecurityHeaders(util.WithCORS(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/channels", s.withUser(s.handleChannels))
	s.mux.Handle("/api/packages", s.withUser(s.handlePackages))
	s.mux.Handle("/api/packages/", s.withUser(s.handlePackageByID))
	s.mux.Handle("/api/jobs/", s.withUser(s.handleJobByID))
	s.mux.Handle("/api/preferences", s.withUser(s.handlePreferences))
	s.mux.Handle("/api/realtime", s.withUser(s.handleRealtime))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

// allowGeneration applies the rate limit guarding the expensive provider
// calls. A nil limiter means no limit is configured.
func (s *Server) allowGeneration(w http.ResponseWriter, userID string) bool {
	if s.limiter == nil {
		return true
	}
	if !s.limiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "generation rate limit exceeded")
		return false
	}
	return true
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	channels := s.app.Channels()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": channels,
		"count": len(channels),
	})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreatePackage(w, r, userID)
	case http.MethodGet:
		s.handleListPackages(w, r, userID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request, userID string) {
	if !s.allowGeneration(w, userID) {
		return
	}
	var req domain.GenerationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pkg, err := s.app.CreatePackage(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, app.ErrSaveFailed) {
			// Generation succeeded; hand the content back with the error
			// so the client can retry the save or export locally.
			writeJSON(w, http.StatusAccepted, map[string]any{
				"package": pkg,
				"error":   "package generated but save failed",
			})
			return
		}
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	pkgs, err := s.app.ListPackages(userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": pkgs,
		"count": len(pkgs),
	})
}

// /api/packages/{id}[/thumbnails/{idx} | /scenes/{idx}/image|audio|narration |
// /video | /slots | /export/{format}]
func (s *Server) handlePackageByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/api/packages/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}

	switch {
	case len(parts) == 1:
		s.handlePackageRoot(w, r, userID, id)
	case len(parts) == 3 && parts[1] == "thumbnails":
		s.handleThumbnail(w, r, userID, id, parts[2])
	case len(parts) == 4 && parts[1] == "scenes":
		s.handleScene(w, r, userID, id, parts[2], parts[3])
	case len(parts) == 2 && parts[1] == "video":
		s.handleRequestVideo(w, r, userID, id)
	case len(parts) == 2 && parts[1] == "slots":
		s.handleSlots(w, r, userID, id)
	case len(parts) == 3 && parts[1] == "export":
		s.handleExport(w, r, userID, id, parts[2])
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handlePackageRoot(w http.ResponseWriter, r *http.Request, userID, id string) {
	switch r.Method {
	case http.MethodGet:
		pkg, err := s.app.GetPackage(userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	case http.MethodDelete:
		if err := s.app.DeletePackage(r.Context(), userID, id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request, userID, id, rawIdx string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	idx, ok := parseIndex(w, rawIdx)
	if !ok {
		return
	}
	if !s.allowGeneration(w, userID) {
		return
	}
	pkg, err := s.app.GenerateThumbnail(r.Context(), userID, id, idx)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request, userID, id, rawIdx, action string) {
	idx, ok := parseIndex(w, rawIdx)
	if !ok {
		return
	}
	switch action {
	case "image":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowGeneration(w, userID) {
			return
		}
		pkg, err := s.app.GenerateSceneImage(r.Context(), userID, id, idx)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	case "audio":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowGeneration(w, userID) {
			return
		}
		pkg, err := s.app.GenerateSceneAudio(r.Context(), userID, id, idx)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	case "narration":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req narrationRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		pkg, err := s.app.UpdateSceneNarration(r.Context(), userID, id, idx, req.Narration)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pkg)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleRequestVideo(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req videoRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sceneIdx := -1
	if req.SceneIndex != nil {
		sceneIdx = *req.SceneIndex
	}
	job, err := s.app.RequestVideo(r.Context(), userID, id, sceneIdx)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	slots, err := s.app.Slots(userID, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": slots})
}

// /api/packages/{id}/export/{json|script|metadata|narration|archive}
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, userID, id, format string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	switch format {
	case "json":
		data, err := s.app.ExportSnapshot(userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="package.json"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "script":
		text, err := s.app.ExportScript(userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="script.txt"`)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, text)
	case "metadata":
		text, err := s.app.ExportMetadata(userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="metadata.txt"`)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, text)
	case "narration":
		idx, ok := parseIndex(w, r.URL.Query().Get("scene"))
		if !ok {
			return
		}
		wav, err := s.app.ExportNarrationWAV(userID, id, idx)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="narration.wav"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wav)
	case "archive":
		if !s.allowGeneration(w, userID) {
			return
		}
		url, err := s.app.ExportArchive(r.Context(), userID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	default:
		notFound(w, "not found")
	}
}

// /api/jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	job, err := s.app.JobStatus(r.Context(), userID, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		prefs, err := s.app.GetPreferences(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	case http.MethodPut:
		var req preferencesRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		prefs, err := s.app.SavePreferences(r.Context(), userID, app.PreferencesUpdate{
			DefaultMood:     req.DefaultMood,
			DefaultDuration: req.DefaultDuration,
			Credential:      req.Credential,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	default:
		methodNotAllowed(w)
	}
}

// writeAppError maps orchestration errors to HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w, "package not found")
	case errors.Is(err, app.ErrEmptyTopic):
		writeError(w, http.StatusBadRequest, "topic is required")
	case errors.Is(err, app.ErrUnknownChannel):
		writeError(w, http.StatusBadRequest, "unknown channel")
	case errors.Is(err, app.ErrInvalidMood):
		writeError(w, http.StatusBadRequest, "invalid mood")
	case errors.Is(err, app.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid duration")
	case errors.Is(err, app.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, "index out of range")
	case errors.Is(err, app.ErrSlotBusy):
		writeError(w, http.StatusConflict, "generation already in flight")
	case errors.Is(err, app.ErrCredentialRequired):
		writeError(w, http.StatusPaymentRequired, "paid API credential required")
	case errors.Is(err, ai.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "narration text is empty")
	case errors.Is(err, ai.ErrParse), errors.Is(err, ai.ErrEmptyResponse),
		errors.Is(err, ai.ErrNoImage), errors.Is(err, ai.ErrNoAudio):
		writeError(w, http.StatusBadGateway, "generation failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type narrationRequest struct {
	Narration string `json:"narration"`
}

type videoRequest struct {
	SceneIndex *int `json:"sceneIndex"`
}

type preferencesRequest struct {
	DefaultMood     string                `json:"defaultMood"`
	DefaultDuration domain.DurationBucket `json:"defaultDuration"`
	Credential      *string               `json:"credential"`
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func parseIndex(w http.ResponseWriter, raw string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 {
		writeError(w, http.StatusBadRequest, "invalid index")
		return 0, false
	}
	return idx, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "package not found":
		return "PACKAGE_NOT_FOUND"
	case message == "topic is required":
		return "PACKAGE_TOPIC_REQUIRED"
	case message == "unknown channel":
		return "PACKAGE_UNKNOWN_CHANNEL"
	case message == "invalid mood":
		return "PACKAGE_INVALID_MOOD"
	case message == "invalid duration":
		return "PACKAGE_INVALID_DURATION"
	case message == "index out of range", message == "invalid index":
		return "PACKAGE_INVALID_INDEX"
	case message == "generation already in flight":
		return "PACKAGE_SLOT_BUSY"
	case message == "paid api credential required":
		return "VIDEO_CREDENTIAL_REQUIRED"
	case message == "narration text is empty":
		return "PACKAGE_EMPTY_NARRATION"
	case message == "generation failed":
		return "GENERATION_UPSTREAM_ERROR"
	case message == "generation rate limit exceeded":
		return "GENERATION_RATE_LIMITED"
	case message == "invalid json body", message == "invalid limit":
		return "REQUEST_INVALID_BODY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID_BODY"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		// Browser WebSocket clients cannot set headers on the upgrade
		// request; they pass the token as a query parameter instead.
		if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
			return token, true
		}
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
