package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/soocke/worktimer-go/domain/capture"
)

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a capture record.
func (r *Repository) Create(ctx context.Context, rec *CaptureRecord) error {
	if result := r.db.WithContext(ctx).Create(rec); result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert capture record")
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]CaptureRecord, error) {
	var recs []CaptureRecord
	if result := r.db.WithContext(ctx).Order("captured_at DESC").Limit(limit).Find(&recs); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query capture records")
	}
	return recs, nil
}

// ForEntry returns the captures taken while entryID was tracked.
func (r *Repository) ForEntry(ctx context.Context, entryID string) ([]CaptureRecord, error) {
	var recs []CaptureRecord
	result := r.db.WithContext(ctx).Where("entry_id = ?", entryID).Order("captured_at ASC").Find(&recs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query captures for entry")
	}
	return recs, nil
}

// DeleteBefore removes records captured before t and returns the count.
func (r *Repository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("captured_at < ?", t).Delete(&CaptureRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old capture records")
	}
	return result.RowsAffected, nil
}

// Archive adapts the repository to capture.Archive, tagging each record with
// the currently tracked entry.
type Archive struct {
	repo    *Repository
	entryID func() string
}

// NewArchive returns an archive; entryID may be nil.
func NewArchive(repo *Repository, entryID func() string) *Archive {
	return &Archive{repo: repo, entryID: entryID}
}

func (a *Archive) Record(ctx context.Context, e capture.ArchiveEntry) error {
	rec := &CaptureRecord{
		DisplayIndex: e.DisplayIndex,
		DisplayName:  e.DisplayName,
		Path:         e.Path,
		Width:        e.Width,
		Height:       e.Height,
		Bytes:        e.Bytes,
		Quality:      e.Quality,
		CapturedAt:   e.CapturedAt,
	}
	if a.entryID != nil {
		rec.EntryID = a.entryID()
	}
	return a.repo.Create(ctx, rec)
}

var _ capture.Archive = (*Archive)(nil)
