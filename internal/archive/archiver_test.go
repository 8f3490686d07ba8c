package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type memStore struct {
	domain.OpportunityStore
	rows    []domain.OpportunityRecord
	deletes []time.Time
}

func (m *memStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.OpportunityRecord, error) {
	var out []domain.OpportunityRecord
	for _, r := range m.rows {
		if r.DetectedAt.Before(cutoff) {
			out = append(out, r)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.deletes = append(m.deletes, cutoff)
	kept := m.rows[:0]
	removed := int64(0)
	for _, r := range m.rows {
		if r.DetectedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

type memUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (m *memUploader) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	body, _ := io.ReadAll(data)
	m.keys = append(m.keys, path)
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *memUploader) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	return m.Put(ctx, path, data, contentType)
}

func row(id string, age time.Duration, base time.Time) domain.OpportunityRecord {
	return domain.OpportunityRecord{
		ID:         id,
		Slug:       "market-" + id,
		Direction:  domain.DirectionLong,
		TotalLong:  0.9,
		Legs:       []domain.Leg{{TokenID: "tok", Price: 0.45}},
		DetectedAt: base.Add(-age),
	}
}

func newTestArchiver(store *memStore, up *memUploader, base time.Time) *Archiver {
	a := New(store, up, Config{Retention: 90 * 24 * time.Hour, Interval: time.Hour}, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return base }
	return a
}

func TestExportUploadsAndPrunes(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	store := &memStore{rows: []domain.OpportunityRecord{
		row("old-1", 100*24*time.Hour, base),
		row("old-2", 95*24*time.Hour, base),
		row("fresh", 24*time.Hour, base),
	}}
	up := &memUploader{}
	a := newTestArchiver(store, up, base)

	require.NoError(t, a.Export(context.Background()))

	require.Len(t, up.keys, 1)
	assert.Contains(t, up.keys[0], "opportunities/2026/05/")

	// Exported rows are JSONL, one object per line.
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(up.bodies[0]))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines++
	}
	assert.Equal(t, 2, lines)

	// Fresh rows survive the prune.
	require.Len(t, store.rows, 1)
	assert.Equal(t, "fresh", store.rows[0].ID)
}

func TestExportNothingToDo(t *testing.T) {
	base := time.Now()
	store := &memStore{rows: []domain.OpportunityRecord{row("fresh", time.Hour, base)}}
	up := &memUploader{}
	a := newTestArchiver(store, up, base)

	require.NoError(t, a.Export(context.Background()))
	assert.Empty(t, up.keys)
	assert.Empty(t, store.deletes)
}

func TestExportKeepsRowsOnUploadFailure(t *testing.T) {
	base := time.Now()
	store := &memStore{rows: []domain.OpportunityRecord{row("old", 100*24*time.Hour, base)}}
	up := &memUploader{err: errors.New("bucket gone")}
	a := newTestArchiver(store, up, base)

	require.Error(t, a.Export(context.Background()))
	assert.Len(t, store.rows, 1, "rows must survive a failed upload")
	assert.Empty(t, store.deletes)
}
