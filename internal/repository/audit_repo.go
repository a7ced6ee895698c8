package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var auditColumns = []string{"id", "draft_ref", "draft_id", "action", "actor", "detail", "created_at"}

// AuditRepository appends draft transitions to a SQL table
type AuditRepository struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	logger  *zap.Logger
}

// NewAuditRepository wraps an open database; driver selects the placeholder style
func NewAuditRepository(db *sqlx.DB, driver string, logger *zap.Logger) *AuditRepository {
	builder := sq.StatementBuilder
	if driver == "postgres" {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}
	return &AuditRepository{
		db:      db,
		builder: builder,
		logger:  logger,
	}
}

// Record appends one entry, filling in its id and timestamp when missing
func (r *AuditRepository) Record(ctx context.Context, e models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.builder.
		Insert("draft_audit").
		Columns(auditColumns...).
		Values(e.ID, e.DraftRef, e.DraftID, string(e.Action), e.Actor, e.Detail, e.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	r.logger.Debug("Audit entry recorded",
		zap.String("draft_ref", e.DraftRef),
		zap.String("action", string(e.Action)))
	return nil
}

// ListByDraft returns the trail of one draft, oldest first
func (r *AuditRepository) ListByDraft(ctx context.Context, draftRef string) ([]models.AuditEntry, error) {
	query, args, err := r.builder.
		Select(auditColumns...).
		From("draft_audit").
		Where(sq.Eq{"draft_ref": draftRef}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// CountByAction returns the number of audit entries per action
func (r *AuditRepository) CountByAction(ctx context.Context) (map[string]int, error) {
	query, args, err := r.builder.
		Select("action", "COUNT(*) AS total").
		From("draft_audit").
		GroupBy("action").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit count: %w", err)
	}

	var rows []struct {
		Action string `db:"action"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Action] = row.Total
	}
	return counts, nil
}
