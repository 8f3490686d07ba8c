package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// It records detections only; fills and trade history are out of scope.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a store backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const selectCols = `id, condition_id, slug, direction, total_long, total_short,
	legs, executed, dry_run, detected_at`

// Insert stores a new detection.
func (s *OpportunityStore) Insert(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
		INSERT INTO opportunities (
			id, condition_id, slug, direction, total_long, total_short,
			legs, executed, dry_run, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	legs, err := json.Marshal(rec.Legs)
	if err != nil {
		return fmt.Errorf("postgres: encode legs for %s: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.ConditionID, rec.Slug, string(rec.Direction),
		rec.TotalLong, rec.TotalShort,
		legs, rec.Executed, rec.DryRun, rec.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent detections, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + selectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListBefore returns detections older than cutoff, oldest first, capped at
// limit. The archiver uses it to page through rows due for export.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + selectCols + ` FROM opportunities
		WHERE detected_at < $1 ORDER BY detected_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteBefore removes detections older than cutoff and returns the count.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]domain.OpportunityRecord, error) {
	var recs []domain.OpportunityRecord
	for rows.Next() {
		var rec domain.OpportunityRecord
		var direction string
		var legs []byte

		if err := rows.Scan(
			&rec.ID, &rec.ConditionID, &rec.Slug, &direction,
			&rec.TotalLong, &rec.TotalShort,
			&legs, &rec.Executed, &rec.DryRun, &rec.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		rec.Direction = domain.Direction(direction)
		if err := json.Unmarshal(legs, &rec.Legs); err != nil {
			return nil, fmt.Errorf("postgres: decode legs for %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
