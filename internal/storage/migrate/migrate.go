package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/chatter-agent/internal/models"
	"github.com/chatter-agent/pkg/logger"
)

const chatterTable = "market_chatter"

// Runner applies in-place schema migrations for databases created by
// earlier deployments. Every step is independently idempotent: it checks
// before it mutates, so the runner is safe to execute on every boot.
//
// The runner only upgrades an existing table; a missing table is left for
// EnsureSchema, which runs right after migrations during bootstrap.
type Runner struct {
	db  *gorm.DB
	log *logger.Logger
}

// New creates a migration runner
func New(db *gorm.DB, log *logger.Logger) *Runner {
	return &Runner{db: db, log: log.WithComponent("migrations")}
}

// Run applies all migrations in order, returning the names of the
// steps that ran. Later steps are not attempted after a failure because
// they depend on the earlier ones.
func (r *Runner) Run(ctx context.Context) (bool, []string, error) {
	r.log.Info().Msg("Running database migrations")

	migrator := r.db.WithContext(ctx).Migrator()
	if !migrator.HasTable(chatterTable) {
		r.log.Info().Msg("Chatter table does not exist yet, nothing to migrate")
		return false, nil, nil
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"ensure summary column", r.ensureSummaryColumn},
		{"ensure source_id column", r.ensureSourceIDColumn},
		{"backfill source_id", r.backfillSourceID},
		{"remove duplicate rows", r.dedupeRows},
		{"ensure unique index", r.ensureUniqueIndex},
	}

	var applied []string
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			r.log.Error().Err(err).Str("step", step.name).Msg("Migration step failed")
			return true, applied, fmt.Errorf("%s: %w", step.name, err)
		}
		applied = append(applied, step.name)
	}

	r.log.Info().Msg("All migrations completed")
	return true, applied, nil
}

// ensureSummaryColumn adds the summary column and copies the legacy
// content column into it, for rows written before summary existed.
func (r *Runner) ensureSummaryColumn(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if migrator.HasColumn(&models.ChatterRecord{}, "summary") {
		return nil
	}

	r.log.Info().Msg("Adding summary column")
	if err := migrator.AddColumn(&models.ChatterRecord{}, "Summary"); err != nil {
		return err
	}

	if migrator.HasColumn(&models.ChatterRecord{}, "content") {
		res := r.db.WithContext(ctx).Exec(
			"UPDATE " + chatterTable + " SET summary = content WHERE (summary IS NULL OR summary = '') AND content IS NOT NULL",
		)
		if res.Error != nil {
			return res.Error
		}
		r.log.Info().Int64("rows", res.RowsAffected).Msg("Copied legacy content into summary")
	}
	return nil
}

// ensureSourceIDColumn adds the dedup key column when missing.
func (r *Runner) ensureSourceIDColumn(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if migrator.HasColumn(&models.ChatterRecord{}, "source_id") {
		return nil
	}
	r.log.Info().Msg("Adding source_id column")
	return migrator.AddColumn(&models.ChatterRecord{}, "SourceID")
}

type legacyRow struct {
	ID      uint
	Ticker  string
	Source  string
	Title   string
	URL     string
	Summary string
}

// backfillSourceID fills the dedup key for rows created before the
// column existed. The value is a content hash, so the same input row
// always produces the same generated value on repeated runs.
func (r *Runner) backfillSourceID(ctx context.Context) error {
	var rows []legacyRow
	err := r.db.WithContext(ctx).
		Table(chatterTable).
		Select("id, ticker, source, COALESCE(title, '') AS title, COALESCE(url, '') AS url, COALESCE(summary, '') AS summary").
		Where("source_id IS NULL OR source_id = ''").
		Find(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	for _, row := range rows {
		var sid string
		if row.URL != "" {
			sid = models.HashURL(row.Source, row.URL)
		} else {
			sid = models.GenerateSourceID(row.Ticker, row.Source, row.Title, row.URL, row.Summary)
		}
		res := r.db.WithContext(ctx).
			Table(chatterTable).
			Where("id = ?", row.ID).
			UpdateColumn("source_id", sid)
		if res.Error != nil {
			return fmt.Errorf("row %d: %w", row.ID, res.Error)
		}
	}

	r.log.Info().Int("rows", len(rows)).Msg("Backfilled source_id")
	return nil
}

// dedupeRows removes rows that now collide on (source, source_id),
// keeping the lowest-ID survivor. Runs before the unique index is
// created so index creation never fails on pre-existing duplicates.
func (r *Runner) dedupeRows(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if migrator.HasIndex(&models.ChatterRecord{}, "idx_chatter_source_source_id") {
		return nil
	}

	res := r.db.WithContext(ctx).Exec(
		"DELETE FROM " + chatterTable + " WHERE id NOT IN (" +
			"SELECT MIN(id) FROM " + chatterTable + " GROUP BY source, source_id)",
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info().Int64("rows", res.RowsAffected).Msg("Removed duplicate rows before unique index")
	}
	return nil
}

// ensureUniqueIndex creates the (source, source_id) unique index.
func (r *Runner) ensureUniqueIndex(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if migrator.HasIndex(&models.ChatterRecord{}, "idx_chatter_source_source_id") {
		return nil
	}
	r.log.Info().Msg("Creating unique index on (source, source_id)")
	return migrator.CreateIndex(&models.ChatterRecord{}, "idx_chatter_source_source_id")
}
