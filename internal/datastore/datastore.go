// Package datastore records accident episodes in SQLite or MySQL via GORM.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// DefaultSlowQueryThreshold is the duration after which a query is logged as slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// upsertColumns are overwritten when an episode is saved again
var upsertColumns = []string{
	"started_at", "ended_at", "triggered_at", "accident_seconds",
	"emergency_triggered", "outcome", "alert_count", "frames_processed",
	"corroborating_frames", "updated_at",
}

// Interface is the episode store used by the recorder and the API.
type Interface interface {
	SaveEpisode(ctx context.Context, e accident.Episode) error
	GetEpisode(ctx context.Context, id string) (accident.Episode, error)
	ListEpisodes(ctx context.Context, opts ListOptions) ([]accident.Episode, error)
	CountEpisodes(ctx context.Context, opts ListOptions) (int64, error)
	Close() error
}

// ListOptions filters and pages episode listings.
type ListOptions struct {
	Limit         int
	Offset        int
	Since         time.Time
	EmergencyOnly bool
}

// OperationRecorder receives database operation timings.
type OperationRecorder interface {
	RecordDbOperation(operation, table, status string, duration float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordDbOperation(string, string, string, float64) {}

// DataStore implements Interface on a GORM connection.
type DataStore struct {
	DB      *gorm.DB
	metrics OperationRecorder
}

// GetLogger returns the datastore package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func newDataStore(db *gorm.DB, metrics OperationRecorder) *DataStore {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &DataStore{DB: db, metrics: metrics}
}

// SaveEpisode inserts the episode or updates the existing row with its ID.
func (ds *DataStore) SaveEpisode(ctx context.Context, e accident.Episode) error {
	rec := recordFromEpisode(&e)
	err := ds.track("save", func() error {
		return ds.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).
			Create(&rec).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("episode_id", e.ID).
			Build()
	}
	return nil
}

// GetEpisode returns one episode. A missing ID yields a not-found error.
func (ds *DataStore) GetEpisode(ctx context.Context, id string) (accident.Episode, error) {
	var rec EpisodeRecord
	err := ds.track("get", func() error {
		return ds.DB.WithContext(ctx).First(&rec, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return accident.Episode{}, errors.Newf("episode %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return accident.Episode{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return rec.Episode(), nil
}

// ListEpisodes returns episodes newest first.
func (ds *DataStore) ListEpisodes(ctx context.Context, opts ListOptions) ([]accident.Episode, error) {
	var recs []EpisodeRecord
	err := ds.track("list", func() error {
		q := ds.filtered(ctx, opts).Order("started_at DESC")
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			q = q.Offset(opts.Offset)
		}
		return q.Find(&recs).Error
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	out := make([]accident.Episode, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].Episode())
	}
	return out, nil
}

// CountEpisodes counts the episodes matching opts, ignoring paging.
func (ds *DataStore) CountEpisodes(ctx context.Context, opts ListOptions) (int64, error) {
	var n int64
	err := ds.track("count", func() error {
		return ds.filtered(ctx, opts).Count(&n).Error
	})
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (ds *DataStore) filtered(ctx context.Context, opts ListOptions) *gorm.DB {
	q := ds.DB.WithContext(ctx).Model(&EpisodeRecord{})
	if !opts.Since.IsZero() {
		q = q.Where("started_at >= ?", opts.Since)
	}
	if opts.EmergencyOnly {
		q = q.Where("emergency_triggered = ?", true)
	}
	return q
}

func (ds *DataStore) track(operation string, fn func() error) error {
	begin := time.Now()
	err := fn()
	status := "success"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = "error"
	}
	ds.metrics.RecordDbOperation(operation, "episodes", status, time.Since(begin).Seconds())
	return err
}
