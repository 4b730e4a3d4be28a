package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/repository"
	"github.com/joseph-ayodele/medscan/internal/repository/repotest"
)

const email = "ada@example.com"

func setup(t *testing.T) (*repository.Client, *ledger.Ledger) {
	t.Helper()
	client := repotest.NewClient(t)
	require.NoError(t, client.Users().Create(context.Background(), &entity.User{
		Email: email,
		Name:  "Ada",
		DOB:   time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Age:   35,
	}))

	tick := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return client, ledger.New(client, repotest.Logger(), ledger.WithClock(clock))
}

func TestRecordAction_CountersAndHistory(t *testing.T) {
	ctx := context.Background()
	client, l := setup(t)

	kinds := []constants.ActionKind{
		constants.ActionReport, constants.ActionScan, constants.ActionQuery,
		constants.ActionReport, constants.ActionQuery, constants.ActionQuery,
	}
	var last entity.Counters
	for _, k := range kinds {
		c, err := l.RecordAction(ctx, email, k)
		require.NoError(t, err)
		last = c
	}
	assert.Equal(t, entity.Counters{Reports: 2, Scans: 1, Queries: 3}, last)

	acts, err := client.Activities().ListByUser(ctx, email)
	require.NoError(t, err)
	require.Len(t, acts, len(kinds))
	// newest first; walk backwards to compare chronological order
	for i, k := range kinds {
		assert.Equal(t, k.Label(), acts[len(acts)-1-i].Action)
	}
}

func TestRecordAction_UnknownUser(t *testing.T) {
	ctx := context.Background()
	client, l := setup(t)

	_, err := l.RecordAction(ctx, "ghost@example.com", constants.ActionQuery)
	require.ErrorIs(t, err, common.ErrNotFound)

	n, err := client.Activities().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordAction_InvalidKind(t *testing.T) {
	_, l := setup(t)
	_, err := l.RecordAction(context.Background(), email, constants.ActionKind("upload"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRecordAction_RollsBackWhenActivityInsertFails(t *testing.T) {
	ctx := context.Background()
	client, l := setup(t)

	_, err := l.RecordAction(ctx, email, constants.ActionScan)
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx, "DROP TABLE activities")
	require.NoError(t, err)

	_, err = l.RecordAction(ctx, email, constants.ActionScan)
	require.ErrorIs(t, err, common.ErrLedgerCommitFailed)

	c, err := client.Users().Counters(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Scans, "counter increment must roll back with the failed activity insert")
}
