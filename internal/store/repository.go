package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SpoolIndexRepository implements internal/spool.Indexer over gorm,
// adapted from internal/repository/audit_repository.go's
// repository-struct-per-table shape. RecordTransition is best-effort: a
// write failure is logged here, never returned, since the filesystem
// remains authoritative (spec.md Design Notes "Filesystem as queue").
type SpoolIndexRepository struct {
	db *gorm.DB
}

func NewSpoolIndexRepository(db *gorm.DB) *SpoolIndexRepository {
	return &SpoolIndexRepository{db: db}
}

func (r *SpoolIndexRepository) RecordTransition(destinationAET, stem, suffix, sourceAET, transition string) {
	record := SpoolIndexRecord{
		DestinationAET: destinationAET,
		Stem:           stem,
		Suffix:         suffix,
		SourceAET:      sourceAET,
		Transition:     transition,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.db.Create(&record).Error; err != nil {
		log.Warn().Err(err).Str("destination_aet", destinationAET).Str("transition", transition).Msg("store: failed to record spool index transition")
	}
}

// Backlog counts spool_index rows for destinationAET whose most recent
// transition was not "delete" — a best-effort backlog estimate for the
// GET /api/v1/spool/{destinationAET} admin endpoint (SPEC_FULL.md §6).
func (r *SpoolIndexRepository) Backlog(ctx context.Context, destinationAET string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Raw(`SELECT count(*) FROM (
			SELECT stem, (array_agg(transition ORDER BY created_at DESC))[1] AS latest
			FROM spool_index
			WHERE destination_aet = ?
			GROUP BY stem
		) s WHERE s.latest <> 'delete'`, destinationAET).
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: failed to compute spool backlog: %w", err)
	}
	return count, nil
}

// AuditRepository records MPPS dispatch outcomes, adapted from
// internal/repository/audit_repository.go with the tenant-scoped queries
// dropped.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, rec *AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: failed to create audit record: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecentBySOPInstanceUID(ctx context.Context, sopInstanceUID string, limit int) ([]AuditRecord, error) {
	var records []AuditRecord
	query := r.db.WithContext(ctx).
		Where("sop_instance_uid = ?", sopInstanceUID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store: failed to query audit records: %w", err)
	}
	return records, nil
}
