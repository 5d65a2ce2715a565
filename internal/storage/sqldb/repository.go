package sqldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatter-agent/internal/config"
	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/internal/storage"
	"github.com/chatter-agent/pkg/logger"
)

// Repository implements storage.Repository on a relational store.
// SQLite serves development and tests, Postgres serves deployments;
// both share the same gorm code path.
type Repository struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the database and configures the shared connection pool.
// Pool exhaustion blocks callers on the pool rather than failing.
func New(cfg config.DatabaseConfig, log *logger.Logger) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		// Ensure directory exists
		dir := filepath.Dir(cfg.DSN)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Repository{db: db, log: log.WithComponent("storage")}, nil
}

// DB exposes the underlying handle for the migration runner.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// EnsureSchema creates the chatter tables and indexes if missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&models.ChatterRecord{},
		&models.Company{},
	)
}

// Ping verifies connectivity with a trivial round-trip query
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("database ping returned unexpected result %d", one)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Persist writes records one at a time with on-conflict-do-nothing
// semantics on (source, source_id). It never returns an error: conflicts
// count as Skipped, genuine write failures as Errors, and the batch
// always runs to completion.
func (r *Repository) Persist(ctx context.Context, records []*models.ChatterRecord) models.IngestionCounts {
	counts := models.IngestionCounts{}
	if len(records) == 0 {
		return counts
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "source_id"}},
		DoNothing: true,
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		res := r.db.WithContext(ctx).Clauses(conflict).Create(rec)
		if res.Error != nil {
			counts.Errors++
			r.log.Warn().
				Err(res.Error).
				Str("source", rec.Source).
				Str("source_id", rec.SourceID).
				Msg("Failed to persist record")
			continue
		}
		if res.RowsAffected == 0 {
			counts.Skipped++
		} else {
			counts.Inserted++
		}
	}

	r.log.Debug().
		Int("inserted", counts.Inserted).
		Int("skipped", counts.Skipped).
		Int("errors", counts.Errors).
		Int("total", len(records)).
		Msg("Persist complete")

	return counts
}

// RecentChatter returns stored records for the read path
func (r *Repository) RecentChatter(ctx context.Context, filter storage.ChatterFilter) ([]*models.ChatterRecord, error) {
	var records []*models.ChatterRecord
	query := r.db.WithContext(ctx).Model(&models.ChatterRecord{})

	if filter.Ticker != "" {
		query = query.Where("ticker = ?", filter.Ticker)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", filter.Source)
	}
	if filter.Days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -filter.Days)
		query = query.Where("published_at >= ?", cutoff)
	}

	query = query.Order("published_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ChatterSummary aggregates stored chatter for a ticker over a window
func (r *Repository) ChatterSummary(ctx context.Context, ticker string, days int) (*storage.Summary, error) {
	summary := &storage.Summary{
		Ticker:                ticker,
		WindowDays:            days,
		Sources:               make(map[string]int),
		SentimentDistribution: make(map[string]int),
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	// Session makes the chain reusable across the aggregate queries below
	base := r.db.WithContext(ctx).Model(&models.ChatterRecord{}).
		Where("ticker = ? AND published_at >= ?", ticker, cutoff).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}
	summary.TotalCount = int(total)
	if total == 0 {
		return summary, nil
	}

	type sourceCount struct {
		Source string
		N      int
	}
	var bySource []sourceCount
	if err := base.
		Select("source, COUNT(*) AS n").
		Group("source").
		Scan(&bySource).Error; err != nil {
		return nil, err
	}
	for _, sc := range bySource {
		summary.Sources[sc.Source] = sc.N
	}

	type labelCount struct {
		SentimentLabel string
		N              int
	}
	var byLabel []labelCount
	if err := base.
		Select("sentiment_label, COUNT(*) AS n").
		Where("sentiment_label <> ''").
		Group("sentiment_label").
		Scan(&byLabel).Error; err != nil {
		return nil, err
	}
	for _, lc := range byLabel {
		summary.SentimentDistribution[lc.SentimentLabel] = lc.N
	}

	type bounds struct {
		Avg    *float64
		Newest *time.Time
		Oldest *time.Time
	}
	var b bounds
	if err := base.
		Select("AVG(sentiment_score) AS avg, MAX(published_at) AS newest, MIN(published_at) AS oldest").
		Scan(&b).Error; err != nil {
		return nil, err
	}
	summary.AverageSentiment = b.Avg
	summary.NewestItem = b.Newest
	summary.OldestItem = b.Oldest

	return summary, nil
}

// ActiveTickers returns distinct tickers of active companies
func (r *Repository) ActiveTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	err := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("is_active = ?", true).
		Distinct().
		Order("ticker").
		Pluck("ticker", &tickers).Error
	if err != nil {
		return nil, err
	}
	return tickers, nil
}

// CompanyName returns the registered name for a ticker, or "" when the
// ticker is not in the company registry
func (r *Repository) CompanyName(ctx context.Context, ticker string) (string, error) {
	var company models.Company
	err := r.db.WithContext(ctx).
		Where("ticker = ?", models.NormalizeTicker(ticker)).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return company.Name, nil
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
