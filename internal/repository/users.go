package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	IncrementCounter(ctx context.Context, email, column string) error
	Counters(ctx context.Context, email string) (entity.Counters, error)
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	ex      dialect.ExecQuerier
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

// NewUserRepository binds a user repository to ex, which is either the pool
// driver or an open transaction.
func NewUserRepository(ex dialect.ExecQuerier, dialectName string, logger *slog.Logger) UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &userRepository{
		ex:      ex,
		builder: entsql.Dialect(dialectName),
		logger:  logger,
	}
}

var userColumns = []string{
	colEmail, colName, colDOB, colAge, colHealthRecords,
	colReportsCount, colScansCount, colQueriesCount,
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	records := user.HealthRecords
	if records == nil {
		records = []string{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode health records: %w", err)
	}

	query, args := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(user.Email, user.Name, user.DOB.UTC(), user.Age, string(raw), int64(0), int64(0), int64(0)).
		Query()
	if err := r.ex.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			return common.NewAppError("ALREADY_EXISTS", "user already exists", common.ErrAlreadyExists)
		}
		r.logger.Error("failed to create user", "email", user.Email, "error", err)
		return fmt.Errorf("%w: insert user: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	b := r.builder
	query, args := b.Select(userColumns...).
		From(b.Table(usersTable)).
		Where(entsql.EQ(colEmail, email)).
		Query()

	var rows entsql.Rows
	if err := r.ex.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query user", "email", email, "error", err)
		return nil, fmt.Errorf("%w: query user: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: query user: %v", common.ErrDatabase, err)
		}
		return nil, common.NotFoundError("user not found")
	}

	var (
		u       entity.User
		dob     sql.Null[time.Time]
		records sql.Null[[]byte]
	)
	if err := rows.Scan(&u.Email, &u.Name, &dob, &u.Age, &records,
		&u.Reports, &u.Scans, &u.Queries); err != nil {
		return nil, fmt.Errorf("%w: scan user: %v", common.ErrDatabase, err)
	}
	if dob.Valid {
		u.DOB = dob.V.UTC()
	}
	u.HealthRecords = []string{}
	if records.Valid && len(records.V) > 0 {
		if err := json.Unmarshal(records.V, &u.HealthRecords); err != nil {
			return nil, fmt.Errorf("decode health records: %w", err)
		}
	}
	return &u, rows.Err()
}

func (r *userRepository) Exists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	default:
		r.logger.Error("failed to check user existence", "email", email, "error", err)
		return false, err
	}
}

// IncrementCounter adds one to the given counter column. It returns
// ErrNotFound when no row matches email.
func (r *userRepository) IncrementCounter(ctx context.Context, email, column string) error {
	switch column {
	case colReportsCount, colScansCount, colQueriesCount:
	default:
		return common.InvalidArgumentErrorf("unknown counter column %q", column)
	}

	query, args := r.builder.Update(usersTable).
		Add(column, 1).
		Where(entsql.EQ(colEmail, email)).
		Query()

	var res sql.Result
	if err := r.ex.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("failed to increment counter", "email", email, "column", column, "error", err)
		return fmt.Errorf("%w: increment %s: %v", common.ErrDatabase, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.NotFoundError("user not found")
	}
	return nil
}

func (r *userRepository) Counters(ctx context.Context, email string) (entity.Counters, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return entity.Counters{}, err
	}
	return u.Counters, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, r.ex, r.builder, usersTable)
}

func countRows(ctx context.Context, ex dialect.ExecQuerier, b *entsql.DialectBuilder, table string) (int64, error) {
	query, args := b.Select(entsql.Count("*")).From(b.Table(table)).Query()
	var rows entsql.Rows
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", common.ErrDatabase, table, err)
	}
	defer rows.Close()
	n, err := entsql.ScanInt64(rows)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", common.ErrDatabase, table, err)
	}
	return n, nil
}
