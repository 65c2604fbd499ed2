// Package store persists the observability-only projections this proxy
// keeps alongside the filesystem spool: the Spool Index (spec.md Design
// Notes "Filesystem as queue" — a mirror for admin visibility, never the
// source of truth) and an audit trail of MPPS dispatch outcomes.
//
// Grounded on the teacher's internal/database (gorm/postgres wiring) and
// internal/models/audit.go + internal/repository/audit_repository.go
// (repository-struct-per-table pattern), re-pointed at this proxy's own
// domain instead of multi-tenant PACS audit logging.
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SpoolIndexRecord mirrors one spool-entry lifecycle transition, written
// by SpoolIndexRepository.RecordTransition (internal/spool.Indexer).
type SpoolIndexRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DestinationAET string    `gorm:"type:varchar(64);index"`
	Stem           string    `gorm:"type:varchar(512);index"`
	Suffix         string    `gorm:"type:varchar(32)"`
	SourceAET      string    `gorm:"type:varchar(64)"`
	Transition     string    `gorm:"type:varchar(32);index"`
	CreatedAt      time.Time `gorm:"index"`
}

func (SpoolIndexRecord) TableName() string { return "spool_index" }

func (r *SpoolIndexRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AuditRecord is one MPPS dispatch outcome (spec.md §4.1's
// OnDimseRQ), adapted from the teacher's multi-tenant AuditLog with the
// tenant/user columns dropped — this proxy has no tenancy concept.
type AuditRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CallingAET     string    `gorm:"type:varchar(64);index"`
	CalledAET      string    `gorm:"type:varchar(64);index"`
	DimseKind      string    `gorm:"type:varchar(20);index"`
	SOPInstanceUID string    `gorm:"type:varchar(255);index"`
	Status         string    `gorm:"type:varchar(20);index"` // success, failure
	ErrorMessage   string    `gorm:"type:text"`
	DurationMS     int64
	CreatedAt      time.Time `gorm:"index"`
}

func (AuditRecord) TableName() string { return "audit_log" }

func (a *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
