package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/corpadmin/migration-api/internal/applier"
)

// Migrator is the applier as seen by the HTTP layer.
type Migrator interface {
	ApplyPending(ctx context.Context) (*applier.Result, error)
	Status(ctx context.Context) (*applier.StatusReport, error)
}

// Pinger checks datastore reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type runResponse struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Migrations []string `json:"migrations"`
	Warnings   []string `json:"warnings,omitempty"`
}

type appliedRecord struct {
	Filename   string    `json:"filename"`
	Checksum   string    `json:"checksum"`
	DurationMs int       `json:"duration_ms"`
	ExecutedAt time.Time `json:"executed_at"`
}

type statusResponse struct {
	Applied []appliedRecord `json:"applied"`
	Pending []string        `json:"pending"`
	Drift   []applier.Drift `json:"drift,omitempty"`
}

// MigrationHandler serves the migration endpoints.
type MigrationHandler struct {
	migrator Migrator
	log      logrus.FieldLogger
}

// NewMigrationHandler creates a MigrationHandler.
func NewMigrationHandler(m Migrator, log logrus.FieldLogger) *MigrationHandler {
	return &MigrationHandler{migrator: m, log: log}
}

// Run applies pending migrations.
func (h *MigrationHandler) Run(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithField("request_id", middleware.GetReqID(r.Context()))

	// A client that disconnects mid-run must not abort a half-applied script.
	res, err := h.migrator.ApplyPending(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, applier.ErrLockNotAcquired) {
			log.Warn("migration run rejected: already in progress")
			writeError(w, http.StatusConflict, "migration already in progress")

			return
		}

		log.WithError(err).Error("migration run failed")

		body := errorBody{Error: err.Error()}
		if res != nil {
			body.Migrations = res.Applied
		}

		writeJSON(w, http.StatusInternalServerError, body)

		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Success:    true,
		Message:    fmt.Sprintf("%d migrations executed", res.Count),
		Migrations: res.Applied,
		Warnings:   warnings(res),
	})
}

// Status reports applied and pending migrations.
func (h *MigrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.migrator.Status(r.Context())
	if err != nil {
		h.log.WithError(err).Error("migration status failed")
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	resp := statusResponse{
		Applied: make([]appliedRecord, 0, len(report.Applied)),
		Pending: report.Pending,
		Drift:   report.Drift,
	}

	for _, rec := range report.Applied {
		resp.Applied = append(resp.Applied, appliedRecord{
			Filename:   rec.Filename,
			Checksum:   rec.Checksum,
			DurationMs: rec.DurationMs,
			ExecutedAt: rec.ExecutedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func warnings(res *applier.Result) []string {
	var out []string

	for _, d := range res.Drift {
		out = append(out, fmt.Sprintf("%s: applied migration changed on disk", d.Filename))
	}

	for _, f := range res.Findings {
		out = append(out, fmt.Sprintf("%s: %s: %s", f.Filename, f.Severity, f.Message))
	}

	return out
}

// HealthHandler reports whether the datastore is reachable.
type HealthHandler struct {
	DB Pinger
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
