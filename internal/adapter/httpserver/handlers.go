package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/craftlab/cardsmith/internal/config"
	"github.com/craftlab/cardsmith/internal/domain"
	"github.com/craftlab/cardsmith/internal/usecase"
)

const maxRequestBody = 1 << 20

// CheckFunc probes a dependency for readiness.
type CheckFunc func(ctx context.Context) error

// Server aggregates the services behind the HTTP API.
type Server struct {
	Cfg      config.Config
	Intake   usecase.IntakeService
	Status   usecase.StatusService
	Gallery  usecase.GalleryService
	Sessions usecase.SessionService
	Tokens   *TokenManager
	Presets  *config.PresetCatalog

	DBCheck    CheckFunc
	RedisCheck CheckFunc
	BlobCheck  CheckFunc
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", domain.ErrInvalidInput)
	}
	if err := getValidator().Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", validationMessage(err), domain.ErrInvalidInput)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("field %s failed on %s", f.Field(), f.Tag())
	}
	return "validation failed"
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

type quotaView struct {
	Used          int `json:"used"`
	Budget        int `json:"budget"`
	Remaining     int `json:"remaining"`
	OverrideLevel int `json:"override_level"`
}

type loginResponse struct {
	Token string `json:"token"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64                     `json:"expires_in"`
	SessionID string                    `json:"session_id"`
	Remaining map[domain.Kind]quotaView `json:"remaining"`
}

// LoginHandler authenticates the configured studio account and returns a
// bearer token plus the session's current quota standing.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	if req.Username != s.Cfg.AuthUsername || !VerifyCredential(req.Password, s.Cfg.AuthPassword) {
		writeError(w, r, fmt.Errorf("bad credentials: %w", domain.ErrUnauthenticated), nil)
		return
	}

	sessionID := usecase.SessionIDForUser(req.Username)
	token, expires := s.Tokens.Issue(sessionID)

	summary, err := s.Sessions.QuotaSummary(r.Context(), sessionID)
	if err != nil {
		LoggerFrom(r).Error("quota summary failed", "error", err, "session_id", sessionID)
		writeError(w, r, err, nil)
		return
	}
	remaining := make(map[domain.Kind]quotaView, len(summary))
	for kind, q := range summary {
		remaining[kind] = quotaView{Used: q.Used, Budget: q.Budget, Remaining: q.Remaining, OverrideLevel: q.OverrideLevel}
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int64(time.Until(expires).Round(time.Second).Seconds()),
		SessionID: sessionID,
		Remaining: remaining,
	})
}

type submitRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=card video"`
	Prompt string `json:"prompt" validate:"required"`
	Preset string `json:"preset" validate:"omitempty,max=64"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	UserOrdinal int    `json:"user_ordinal"`
	Remaining   int    `json:"remaining"`
}

// SubmitHandler accepts a generation request, applies an optional preset, and
// enqueues the job. The response never blocks on generation.
func (s *Server) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated, nil)
		return
	}
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, fmt.Errorf("unknown kind %q: %w", req.Kind, err), nil)
		return
	}

	prompt := req.Prompt
	if req.Preset != "" && s.Presets != nil {
		prompt = s.Presets.Apply(req.Preset, string(kind), prompt)
	}

	// Intake is a fast path: precheck plus two writes. A tight deadline keeps
	// a slow store or broker from holding the caller open.
	ctx := r.Context()
	if s.Cfg.IntakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.IntakeTimeout)
		defer cancel()
	}

	res, err := s.Intake.Submit(ctx, sessionID, kind, prompt)
	if err != nil {
		var details interface{}
		if errors.Is(err, domain.ErrQuotaExceeded) {
			details = map[string]int{"remaining": 0}
		}
		writeError(w, r, err, details)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:       res.JobID,
		Status:      string(domain.JobQueued),
		UserOrdinal: res.UserOrdinal,
		Remaining:   res.Remaining,
	})
}

type statusResponse struct {
	JobID       string     `json:"job_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusHandler returns the current state of one of the session's jobs.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated, nil)
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		writeError(w, r, fmt.Errorf("missing job_id: %w", domain.ErrInvalidInput), nil)
		return
	}
	v, err := s.Status.Get(r.Context(), sessionID, jobID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:       v.JobID,
		Kind:        string(v.Kind),
		Status:      string(v.Status),
		ArtifactURL: v.ArtifactURL,
		ErrorKind:   v.ErrorKind,
		ErrorMsg:    v.ErrorMsg,
		CreatedAt:   v.CreatedAt,
		CompletedAt: v.CompletedAt,
	})
}

type galleryItemView struct {
	JobID       string     `json:"job_id"`
	Kind        string     `json:"kind"`
	Prompt      string     `json:"prompt"`
	ArtifactURL string     `json:"artifact_url"`
	UserOrdinal int        `json:"user_ordinal"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type galleryResponse struct {
	Items []galleryItemView `json:"items"`
}

// GalleryHandler lists the session's completed artifacts as signed URLs,
// newest first. Without a kind filter the whole session is returned.
func (s *Server) GalleryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated, nil)
		return
	}

	var items []usecase.GalleryItem
	var err error
	if kindParam := r.URL.Query().Get("kind"); kindParam != "" {
		kind, parseErr := domain.ParseKind(kindParam)
		if parseErr != nil {
			writeError(w, r, fmt.Errorf("unknown kind %q: %w", kindParam, parseErr), nil)
			return
		}
		items, err = s.Gallery.List(r.Context(), sessionID, kind)
	} else {
		items, err = s.Gallery.ListAll(r.Context(), sessionID)
	}
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	views := make([]galleryItemView, 0, len(items))
	for _, it := range items {
		views = append(views, galleryItemView{
			JobID:       it.JobID,
			Kind:        string(it.Kind),
			Prompt:      it.Prompt,
			ArtifactURL: it.ArtifactURL,
			UserOrdinal: it.UserOrdinal,
			CreatedAt:   it.CreatedAt,
			CompletedAt: it.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, galleryResponse{Items: views})
}

// HealthzHandler reports process liveness only.
func (s *Server) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyzHandler probes the backing stores and reports per-dependency status.
func (s *Server) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckFunc{
		"db":    s.DBCheck,
		"redis": s.RedisCheck,
		"blob":  s.BlobCheck,
	}
	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if check == nil {
			results[name] = "skipped"
			continue
		}
		if err := check(ctx); err != nil {
			LoggerFrom(r).Warn("readiness check failed", "dependency", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": results,
	})
}
