// Package httpapi implements the admin HTTP surface named in
// SPEC_FULL.md §6: health/readiness, Prometheus metrics, forward-rule
// introspection, config reload, an out-of-band recovery sweep trigger,
// and a best-effort spool backlog count. It is an operational surface,
// not a user interface or a DIMSE SOP class (SPEC_FULL.md Non-goals).
//
// Adapted from the teacher's internal/handlers/{health,management}.go
// and the chi router block in cmd/server/main.go.
package httpapi

import (
	"os"
	"path/filepath"

	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/recovery"
	"github.com/dcmrelay/mpps-proxy/internal/store"
	"github.com/dcmrelay/mpps-proxy/internal/template"
	"gorm.io/gorm"
)

// SweepTarget pairs one spool root with the RootKind the Recovery
// Sweeper needs to dispatch on it correctly (internal/recovery).
type SweepTarget struct {
	Root string
	Kind recovery.RootKind
}

// Deps is everything the admin handlers need. DB and SpoolIndex are
// nil-safe: when absent, /ready reports healthy without a database check
// and /api/v1/spool/{destinationAET} falls back to a filesystem count.
type Deps struct {
	DB           *gorm.DB
	SpoolIndex   *store.SpoolIndexRepository
	Evaluators   map[string]*forwardrule.ConfigEvaluator
	Templates    *template.Cache
	Sweeper      *recovery.Sweeper
	SweepTargets []SweepTarget
	SpoolRoots   []string // base directories to search when falling back to a filesystem backlog count
	Reload       func() error
}

// Handler bundles Deps behind the handler methods Router wires up.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) pingDB() error {
	if h.deps.DB == nil {
		return nil
	}
	sqlDB, err := h.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// backlogFromFilesystem walks each configured spool root's
// <root>/<destinationAET> directory and counts entries as a fallback
// when the Spool Index is unavailable (SPEC_FULL.md §6).
func (h *Handler) backlogFromFilesystem(destinationAET string) (int, error) {
	total := 0
	for _, root := range h.deps.SpoolRoots {
		dir := filepath.Join(root, destinationAET)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				total++
			}
		}
	}
	return total, nil
}
