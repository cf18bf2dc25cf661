package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/event"
)

// Storage persists the event WAL, consensus decisions and key/value settings
// in SQLite (pure Go driver).
type Storage struct {
	db *gorm.DB
}

var _ domain.DecisionRepository = (*Storage)(nil)

// NewStorage opens (or creates) the database at path and migrates it.
func NewStorage(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.EventRecord{}, &domain.DecisionRecord{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Event WAL
// ======================================================================================

// SaveEvent appends ev to the WAL. A duplicate sequence number is an error.
func (s *Storage) SaveEvent(ctx context.Context, ev event.Event) error {
	rec, err := event.Encode(ev)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// LoadEvents returns WAL records with seq >= fromSeq in sequence order.
func (s *Storage) LoadEvents(ctx context.Context, fromSeq uint64) ([]domain.EventRecord, error) {
	var recs []domain.EventRecord
	err := s.db.WithContext(ctx).
		Where("seq >= ?", fromSeq).
		Order("seq ASC").
		Find(&recs).Error
	return recs, err
}

// LastSeq returns the highest persisted sequence number, 0 for an empty WAL.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var rec domain.EventRecord
	err := s.db.WithContext(ctx).Order("seq DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.Seq, nil
}

// ======================================================================================
// Decisions
// ======================================================================================

// SaveDecision stores one consensus decision.
func (s *Storage) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// RecentDecisions returns up to limit decisions for symbol, newest first.
func (s *Storage) RecentDecisions(ctx context.Context, symbol string, limit int) ([]domain.DecisionRecord, error) {
	var recs []domain.DecisionRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Settings
// ======================================================================================

// SaveSetting upserts one key/value setting.
func (s *Storage) SaveSetting(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Save(&domain.AppConfig{Key: key, Value: value}).Error
}

// Settings returns every stored setting keyed by name.
func (s *Storage) Settings(ctx context.Context) (map[string]string, error) {
	var rows []domain.AppConfig
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
