package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
)

type ActivityRepository interface {
	Insert(ctx context.Context, email, action string, at time.Time) error
	ListByUser(ctx context.Context, email string) ([]entity.Activity, error)
	Count(ctx context.Context) (int64, error)
}

type activityRepository struct {
	ex      dialect.ExecQuerier
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewActivityRepository(ex dialect.ExecQuerier, dialectName string, logger *slog.Logger) ActivityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &activityRepository{
		ex:      ex,
		builder: entsql.Dialect(dialectName),
		logger:  logger,
	}
}

func (r *activityRepository) Insert(ctx context.Context, email, action string, at time.Time) error {
	query, args := r.builder.Insert(activitiesTable).
		Columns(colUserEmail, colAction, colDate).
		Values(email, action, at.UTC()).
		Query()
	if err := r.ex.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to insert activity", "email", email, "action", action, "error", err)
		return fmt.Errorf("%w: insert activity: %v", common.ErrDatabase, err)
	}
	return nil
}

// ListByUser returns the user's history, newest first. Rows written within the
// same instant keep insertion order through the id tiebreak.
func (r *activityRepository) ListByUser(ctx context.Context, email string) ([]entity.Activity, error) {
	b := r.builder
	query, args := b.Select(colID, colUserEmail, colAction, colDate).
		From(b.Table(activitiesTable)).
		Where(entsql.EQ(colUserEmail, email)).
		OrderBy(entsql.Desc(colDate), entsql.Desc(colID)).
		Query()

	var rows entsql.Rows
	if err := r.ex.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list activities", "email", email, "error", err)
		return nil, fmt.Errorf("%w: list activities: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make([]entity.Activity, 0)
	for rows.Next() {
		var a entity.Activity
		if err := rows.Scan(&a.ID, &a.UserEmail, &a.Action, &a.Date); err != nil {
			return nil, fmt.Errorf("%w: scan activity: %v", common.ErrDatabase, err)
		}
		a.Date = a.Date.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list activities: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *activityRepository) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.ex, r.builder, activitiesTable)
}
