// Package ledger commits billable user actions: one counter increment and one
// activity row, atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/repository"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *repository.Tx) error) error
}

// Recorder is what callers of the ledger depend on.
type Recorder interface {
	RecordAction(ctx context.Context, email string, kind constants.ActionKind) (entity.Counters, error)
}

type Ledger struct {
	db     TxRunner
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Ledger)

// WithClock overrides the activity timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(db TxRunner, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{db: db, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordAction increments the counter for kind, appends the matching activity
// and returns the counters as committed. Either both writes land or neither.
func (l *Ledger) RecordAction(ctx context.Context, email string, kind constants.ActionKind) (entity.Counters, error) {
	if !kind.Valid() {
		return entity.Counters{}, common.InvalidArgumentErrorf("unknown action kind %q", kind)
	}

	var counters entity.Counters
	err := l.db.WithTx(ctx, func(tx *repository.Tx) error {
		if err := tx.Users.IncrementCounter(ctx, email, kind.CounterColumn()); err != nil {
			return err
		}
		if err := tx.Activities.Insert(ctx, email, kind.Label(), l.now()); err != nil {
			return err
		}
		c, err := tx.Users.Counters(ctx, email)
		if err != nil {
			return err
		}
		counters = c
		return nil
	})
	if err != nil {
		l.logger.Error("ledger.commit.failed", "user", email, "kind", kind, "error", err)
		if errors.Is(err, common.ErrNotFound) {
			return entity.Counters{}, common.NotFoundError("user not found")
		}
		return entity.Counters{}, fmt.Errorf("%w: %v", common.ErrLedgerCommitFailed, err)
	}

	l.logger.Info("ledger.commit.ok", "user", email, "kind", kind,
		"reports", counters.Reports, "scans", counters.Scans, "queries", counters.Queries)
	return counters, nil
}
