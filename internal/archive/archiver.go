// Package archive exports aged detection-log rows to blob storage as JSONL
// and prunes them from the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	// batchSize caps how many rows one export object holds.
	batchSize = 5000

	// multipartThreshold switches uploads to the multipart path.
	multipartThreshold = 5 * 1024 * 1024

	contentType = "application/x-ndjson"
)

// Uploader is the slice of the blob writer the archiver needs.
type Uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Config controls the archiver's schedule and retention.
type Config struct {
	// Retention is how long rows stay in the database before export.
	Retention time.Duration
	// Interval is the pause between export passes.
	Interval time.Duration
	// Prefix is the object key prefix inside the bucket.
	Prefix string
}

// Archiver moves aged opportunity rows from Postgres to object storage.
type Archiver struct {
	store  domain.OpportunityStore
	blob   Uploader
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Archiver.
func New(store domain.OpportunityStore, blob Uploader, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "opportunities"
	}
	return &Archiver{
		store:  store,
		blob:   blob,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run exports on the configured interval until ctx is cancelled. Export
// failures are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := a.Export(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("export failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Export uploads every row older than the retention cutoff as JSONL
// objects, then deletes the exported rows. Rows are only deleted after all
// uploads succeed, so a failed pass is re-exported rather than lost.
func (a *Archiver) Export(ctx context.Context) error {
	cutoff := a.now().Add(-a.cfg.Retention)
	exported := 0

	for {
		recs, err := a.store.ListBefore(ctx, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("archive: list rows: %w", err)
		}
		if len(recs) == 0 {
			break
		}

		if err := a.upload(ctx, recs); err != nil {
			return err
		}
		exported += len(recs)

		// Delete exactly what was uploaded: everything in this batch is
		// older than the newest record's timestamp plus one tick.
		batchCutoff := recs[len(recs)-1].DetectedAt.Add(time.Microsecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		if _, err := a.store.DeleteBefore(ctx, batchCutoff); err != nil {
			return fmt.Errorf("archive: prune rows: %w", err)
		}
	}

	if exported > 0 {
		a.logger.Info("export complete",
			slog.Int("rows", exported),
			slog.Time("cutoff", cutoff))
	}
	return nil
}

// upload serializes one batch as JSONL and writes a single object.
func (a *Archiver) upload(ctx context.Context, recs []domain.OpportunityRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range recs {
		if err := enc.Encode(exportRow(recs[i])); err != nil {
			return fmt.Errorf("archive: encode row %s: %w", recs[i].ID, err)
		}
	}

	first := recs[0].DetectedAt.UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%02d/%s.jsonl",
		a.cfg.Prefix, first.Year(), first.Month(), first.Day(), recs[0].ID)

	if buf.Len() >= multipartThreshold {
		if err := a.blob.PutMultipart(ctx, key, &buf, contentType, multipartThreshold); err != nil {
			return err
		}
	} else {
		if err := a.blob.Put(ctx, key, &buf, contentType); err != nil {
			return err
		}
	}

	a.logger.Debug("batch uploaded",
		slog.String("key", key),
		slog.Int("rows", len(recs)))
	return nil
}

// exportRecord is the JSONL schema for one archived detection.
type exportRecord struct {
	ID          string       `json:"id"`
	ConditionID string       `json:"condition_id,omitempty"`
	Slug        string       `json:"slug"`
	Direction   string       `json:"direction"`
	TotalLong   float64      `json:"total_long"`
	TotalShort  float64      `json:"total_short"`
	Legs        []domain.Leg `json:"legs"`
	Executed    bool         `json:"executed"`
	DryRun      bool         `json:"dry_run"`
	DetectedAt  time.Time    `json:"detected_at"`
}

func exportRow(rec domain.OpportunityRecord) exportRecord {
	return exportRecord{
		ID:          rec.ID,
		ConditionID: rec.ConditionID,
		Slug:        rec.Slug,
		Direction:   string(rec.Direction),
		TotalLong:   rec.TotalLong,
		TotalShort:  rec.TotalShort,
		Legs:        rec.Legs,
		Executed:    rec.Executed,
		DryRun:      rec.DryRun,
		DetectedAt:  rec.DetectedAt,
	}
}
